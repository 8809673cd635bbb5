package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

const (
	weekCachePrefix      = "timetable:week:"
	weekGenerationPrefix = "timetable:gen:"
)

type scheduleReader interface {
	ListBetween(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error)
}

type roomDirectory interface {
	RoomIDs(ctx context.Context) ([]string, error)
}

// TimetableConfig shapes the read side of the timetable.
type TimetableConfig struct {
	Catalog    *timetable.Catalog
	WeekLength timetable.WeekLength
	Location   *time.Location
	CacheTTL   time.Duration
}

// WeekQuery selects one week grid. A zero Date means today and zero Days the
// configured week length.
type WeekQuery struct {
	Date             civil.Date
	Days             int
	Scope            timetable.Scope
	IncludeCancelled bool
}

// TimetableService answers read queries over the schedule: the slot catalog,
// week windows, grids and free rooms.
type TimetableService struct {
	entries scheduleReader
	rooms   roomDirectory
	cache   *CacheService
	metrics *MetricsService
	cfg     TimetableConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(entries scheduleReader, rooms roomDirectory, cache *CacheService, metrics *MetricsService, cfg TimetableConfig, logger *zap.Logger) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = timetable.MustCatalog(timetable.DefaultSlotSpec)
	}
	if !cfg.WeekLength.Valid() {
		cfg.WeekLength = timetable.SixDayWeek
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &TimetableService{
		entries: entries,
		rooms:   rooms,
		cache:   cache,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Catalog exposes the slot catalog.
func (s *TimetableService) Catalog() *timetable.Catalog {
	return s.cfg.Catalog
}

// Slots returns the slot catalog in order.
func (s *TimetableService) Slots() []models.TimeSlot {
	return s.cfg.Catalog.AllSlots()
}

// Today returns the current date in the configured timezone.
func (s *TimetableService) Today() civil.Date {
	return civil.DateOf(s.now().In(s.cfg.Location))
}

// Week returns the window containing date. Zero arguments select today and the configured length.
func (s *TimetableService) Week(date civil.Date, days int) (timetable.WeekWindow, error) {
	length, err := s.length(days)
	if err != nil {
		return timetable.WeekWindow{}, err
	}
	if date.IsZero() {
		date = s.Today()
	}
	return timetable.WeekWindowFor(date, length), nil
}

// WeekGrid builds the grid for q. The second result reports whether it came from the cache.
func (s *TimetableService) WeekGrid(ctx context.Context, q WeekQuery) (*timetable.WeekGrid, bool, error) {
	window, err := s.Week(q.Date, q.Days)
	if err != nil {
		return nil, false, err
	}

	// A write that commits while this grid is being built bumps the week's
	// generation, so the grid below lands under a key no later reader uses.
	gen, cacheable := s.cache.Generation(ctx, weekGenerationKey(window.Start))
	key := weekCacheKey(window, gen, q.Scope, q.IncludeCancelled)
	if cacheable {
		var cached timetable.WeekGrid
		if s.cache.Get(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	start := time.Now()
	entries, err := s.entries.ListBetween(ctx, window.Start, window.End)
	s.metrics.ObserveDBQuery("week_grid", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entries")
	}

	builder := timetable.GridBuilder{Catalog: s.cfg.Catalog, IncludeCancelled: q.IncludeCancelled, Logger: s.logger}
	grid := builder.Build(window, q.Scope, entries)
	if grid.Anomalies > 0 {
		s.metrics.RecordCellAnomalies(grid.Anomalies)
		s.logger.Warn("week grid has overlapping entries in one cell",
			zap.String("week", window.Start.String()),
			zap.String("scope", q.Scope.Key()),
			zap.Int("anomalies", grid.Anomalies),
		)
	}

	if cacheable {
		s.cache.Set(ctx, key, grid, s.cfg.CacheTTL)
	}
	return &grid, false, nil
}

// Entries returns the entries between from and to that fall inside scope.
func (s *TimetableService) Entries(ctx context.Context, from, to civil.Date, scope timetable.Scope, includeCancelled bool) ([]models.ScheduleEntry, error) {
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	start := time.Now()
	entries, err := s.entries.ListBetween(ctx, from, to)
	s.metrics.ObserveDBQuery("entries_between", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entries")
	}
	out := make([]models.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if !scope.Matches(e) {
			continue
		}
		if !includeCancelled && !e.Status.Active() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// FreeRooms lists rooms with no active entry overlapping slotID on date.
func (s *TimetableService) FreeRooms(ctx context.Context, date civil.Date, slotID string) ([]string, error) {
	if s.rooms == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "room directory is not configured")
	}
	slot, ok := s.cfg.Catalog.SlotByID(slotID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown slot %q", slotID))
	}
	if date.IsZero() {
		date = s.Today()
	}
	rooms, err := s.rooms.RoomIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	entries, err := s.entries.ListBetween(ctx, date, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entries")
	}
	return timetable.FreeRooms(rooms, date, slot, entries), nil
}

// InvalidateWeeks drops every cached grid of the weeks containing dates.
func (s *TimetableService) InvalidateWeeks(ctx context.Context, dates ...civil.Date) {
	seen := make(map[civil.Date]bool, len(dates))
	for _, d := range dates {
		monday := timetable.WeekWindowFor(d, timetable.SevenDayWeek).Start
		if seen[monday] {
			continue
		}
		seen[monday] = true
		s.cache.Bump(ctx, weekGenerationKey(monday))
		s.cache.Invalidate(ctx, weekCachePrefix+monday.String()+":*")
	}
}

func (s *TimetableService) length(days int) (timetable.WeekLength, error) {
	if days == 0 {
		return s.cfg.WeekLength, nil
	}
	length, err := timetable.ParseWeekLength(days)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return length, nil
}

func weekCacheKey(window timetable.WeekWindow, gen int64, scope timetable.Scope, includeCancelled bool) string {
	return fmt.Sprintf("%s%s:g%d:%d:%s:%t", weekCachePrefix, window.Start, gen, window.Length(), scope.Key(), includeCancelled)
}

func weekGenerationKey(monday civil.Date) string {
	return weekGenerationPrefix + monday.String()
}
