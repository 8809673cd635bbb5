package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type scheduleStore interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, int, error)
	ListBetween(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	Atomic(ctx context.Context, dates []civil.Date, fn func(tx repository.ScheduleTx) error) error
}

type subjectDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type weekInvalidator interface {
	InvalidateWeeks(ctx context.Context, dates ...civil.Date)
}

// ScheduleEntryRequest is the wire form of a placement.
type ScheduleEntryRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	SubjectID string `json:"subjectId" validate:"required"`
	TeacherID string `json:"teacherId"`
	RoomID    string `json:"roomId" validate:"required"`
	GroupID   string `json:"groupId" validate:"required"`
	Status    string `json:"status"`
}

// CheckScheduleRequest is a dry-run placement; ExcludeID names the entry being edited.
type CheckScheduleRequest struct {
	ScheduleEntryRequest
	ExcludeID string `json:"excludeId"`
}

// UpdateScheduleRequest carries the fields to change; absent fields stay as they are.
type UpdateScheduleRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	SubjectID *string `json:"subjectId" validate:"omitempty,min=1"`
	RoomID    *string `json:"roomId" validate:"omitempty,min=1"`
	GroupID   *string `json:"groupId" validate:"omitempty,min=1"`
	Status    *string `json:"status"`
}

// BulkCreateRequest holds several placements accepted or rejected together.
type BulkCreateRequest struct {
	Items          []ScheduleEntryRequest `json:"items" validate:"required,min=1,max=500"`
	PartialOnError bool                   `json:"partialOnError"`
}

// RecurringScheduleRequest places one session on every date produced by an RRULE.
type RecurringScheduleRequest struct {
	RRule          string   `json:"rrule" validate:"required"`
	StartDate      string   `json:"startDate" validate:"required"`
	ExceptDates    []string `json:"exceptDates"`
	StartTime      string   `json:"startTime" validate:"required"`
	EndTime        string   `json:"endTime" validate:"required"`
	SubjectID      string   `json:"subjectId" validate:"required"`
	TeacherID      string   `json:"teacherId"`
	RoomID         string   `json:"roomId" validate:"required"`
	GroupID        string   `json:"groupId" validate:"required"`
	Status         string   `json:"status"`
	PartialOnError bool     `json:"partialOnError"`
}

// BulkItemFailure explains why one batch item was not created.
type BulkItemFailure struct {
	Index     int                    `json:"index"`
	Date      string                 `json:"date,omitempty"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Conflicts *models.ConflictResult `json:"conflicts,omitempty"`
}

// BulkCreateResult summarises a batch.
type BulkCreateResult struct {
	Created []models.ScheduleEntry `json:"created"`
	Failed  []BulkItemFailure      `json:"failed"`
}

// PlacementConfig carries the placement rules.
type PlacementConfig struct {
	Catalog              *timetable.Catalog
	RequireSlotAlignment bool
	MaxOccurrences       int
	Location             *time.Location
}

// PlacementService validates and applies schedule mutations. Every write runs
// as lock, read the affected dates, detect conflicts, write; a rejected write
// leaves the store untouched.
type PlacementService struct {
	store       scheduleStore
	subjects    subjectDirectory
	rules       timetable.DraftRules
	cfg         PlacementConfig
	validator   *validator.Validate
	metrics     *MetricsService
	invalidator weekInvalidator
	logger      *zap.Logger
}

type plannedPlacement struct {
	index  int
	draft  models.ScheduleDraft
	status models.ScheduleStatus
}

// NewPlacementService instantiates PlacementService. A nil subject directory
// makes teacherId mandatory on every draft.
func NewPlacementService(store scheduleStore, subjects subjectDirectory, cfg PlacementConfig, validate *validator.Validate, metrics *MetricsService, invalidator weekInvalidator, logger *zap.Logger) *PlacementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = timetable.MustCatalog(timetable.DefaultSlotSpec)
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = 60
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PlacementService{
		store:       store,
		subjects:    subjects,
		rules:       timetable.DraftRules{Catalog: cfg.Catalog, RequireSlotAlignment: cfg.RequireSlotAlignment},
		cfg:         cfg,
		validator:   validate,
		metrics:     metrics,
		invalidator: invalidator,
		logger:      logger,
	}
}

// List returns entries with pagination metadata.
func (s *PlacementService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	entries, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule entries")
	}
	if entries == nil {
		entries = []models.ScheduleEntry{}
	}
	return entries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one entry.
func (s *PlacementService) Get(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	entry, err := s.store.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entry")
	}
	return entry, nil
}

// Create parses and places a new entry.
func (s *PlacementService) Create(ctx context.Context, req ScheduleEntryRequest) (*models.ScheduleEntry, error) {
	draft, status, err := s.parseRequest(req)
	if err != nil {
		return nil, s.fail("create", err)
	}
	return s.CreateDraft(ctx, draft, status)
}

// CreateDraft places draft if it collides with no active entry.
func (s *PlacementService) CreateDraft(ctx context.Context, draft models.ScheduleDraft, status models.ScheduleStatus) (*models.ScheduleEntry, error) {
	draft.ExcludeID = ""
	draft, err := s.prepare(ctx, draft)
	if err != nil {
		return nil, s.fail("create", err)
	}

	entry := newEntry(draft, status)
	err = s.store.Atomic(ctx, []civil.Date{draft.Date}, func(tx repository.ScheduleTx) error {
		existing, err := tx.ListByDate(ctx, draft.Date)
		if err != nil {
			return err
		}
		if result := timetable.FindConflicts(draft, existing); !result.Empty() {
			return conflictError("schedule entry conflicts with existing entries", result)
		}
		return tx.Insert(ctx, &entry)
	})
	if err != nil {
		return nil, s.fail("create", s.translate(ctx, "create", draft, err))
	}

	s.accepted("create", entry.Date)
	s.logger.Info("schedule entry created",
		zap.String("id", entry.ID),
		zap.String("date", entry.Date.String()),
		zap.String("start", entry.StartTime.String()),
		zap.String("room_id", entry.RoomID),
	)
	return &entry, nil
}

// Update parses req and applies it to entry id.
func (s *PlacementService) Update(ctx context.Context, id string, req UpdateScheduleRequest) (*models.ScheduleEntry, error) {
	patch, err := s.parsePatch(req)
	if err != nil {
		return nil, s.fail("update", err)
	}
	return s.UpdateEntry(ctx, id, patch)
}

// UpdateEntry applies patch to entry id. Moving or restoring an entry is
// conflict-checked against every other active entry; cancelling is not.
func (s *PlacementService) UpdateEntry(ctx context.Context, id string, patch models.ScheduleEntryPatch) (*models.ScheduleEntry, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, s.fail("update", err)
	}

	target := patch.Apply(*current)
	if patch.SubjectID != nil {
		teacherID, err := s.resolveTeacher(ctx, target.SubjectID, "")
		if err != nil {
			return nil, s.fail("update", err)
		}
		target.TeacherID = teacherID
	}
	if err := s.validateDraft(target.Draft()); err != nil {
		return nil, s.fail("update", err)
	}

	var updated models.ScheduleEntry
	err = s.store.Atomic(ctx, []civil.Date{current.Date, target.Date}, func(tx repository.ScheduleTx) error {
		fresh, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if fresh.Date != current.Date {
			return appErrors.Clone(appErrors.ErrConflict, "schedule entry changed concurrently, retry the update")
		}
		next := patch.Apply(*fresh)
		if patch.SubjectID != nil {
			next.TeacherID = target.TeacherID
		}
		if err := s.validateDraft(next.Draft()); err != nil {
			return err
		}
		if next.Status.Active() {
			existing, err := tx.ListByDate(ctx, next.Date)
			if err != nil {
				return err
			}
			if result := timetable.FindConflicts(next.Draft(), existing); !result.Empty() {
				return conflictError("updated schedule entry conflicts with existing entries", result)
			}
		}
		if err := tx.Update(ctx, &next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, s.fail("update", s.translate(ctx, "update", target.Draft(), err))
	}

	s.accepted("update", current.Date, updated.Date)
	s.logger.Info("schedule entry updated",
		zap.String("id", updated.ID),
		zap.String("date", updated.Date.String()),
		zap.String("status", string(updated.Status)),
	)
	return &updated, nil
}

// Cancel marks an entry CANCELLED while keeping it for history.
func (s *PlacementService) Cancel(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, s.fail("cancel", err)
	}

	var cancelled models.ScheduleEntry
	err = s.store.Atomic(ctx, []civil.Date{current.Date}, func(tx repository.ScheduleTx) error {
		fresh, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		cancelled = *fresh
		if fresh.Status == models.ScheduleStatusCancelled {
			return nil
		}
		cancelled.Status = models.ScheduleStatusCancelled
		return tx.Update(ctx, &cancelled)
	})
	if err != nil {
		return nil, s.fail("cancel", s.translate(ctx, "cancel", current.Draft(), err))
	}

	s.accepted("cancel", cancelled.Date)
	s.logger.Info("schedule entry cancelled", zap.String("id", id), zap.String("date", cancelled.Date.String()))
	return &cancelled, nil
}

// Remove deletes an entry outright.
func (s *PlacementService) Remove(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return s.fail("remove", err)
	}

	err = s.store.Atomic(ctx, []civil.Date{current.Date}, func(tx repository.ScheduleTx) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return s.fail("remove", s.translate(ctx, "remove", current.Draft(), err))
	}

	s.accepted("remove", current.Date)
	s.logger.Info("schedule entry removed", zap.String("id", id), zap.String("date", current.Date.String()))
	return nil
}

// Check reports what a placement would collide with without writing anything.
func (s *PlacementService) Check(ctx context.Context, req CheckScheduleRequest) (models.ConflictResult, error) {
	draft, _, err := s.parseRequest(req.ScheduleEntryRequest)
	if err != nil {
		return models.ConflictResult{}, err
	}
	draft.ExcludeID = strings.TrimSpace(req.ExcludeID)
	return s.CheckDraft(ctx, draft)
}

// CheckDraft is the dry-run form of CreateDraft.
func (s *PlacementService) CheckDraft(ctx context.Context, draft models.ScheduleDraft) (models.ConflictResult, error) {
	draft, err := s.prepare(ctx, draft)
	if err != nil {
		return models.ConflictResult{}, err
	}
	existing, err := s.store.ListBetween(ctx, draft.Date, draft.Date)
	if err != nil {
		return models.ConflictResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entries")
	}
	return timetable.FindConflicts(draft, existing), nil
}

// BulkCreate places every item in one transaction. Items are checked against
// the store and against earlier items of the same batch. Without
// PartialOnError the first failure rejects the whole batch.
func (s *PlacementService) BulkCreate(ctx context.Context, req BulkCreateRequest) (*BulkCreateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.fail("bulk_create", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk schedule payload"))
	}

	result := &BulkCreateResult{Created: []models.ScheduleEntry{}, Failed: []BulkItemFailure{}}
	planned := make([]plannedPlacement, 0, len(req.Items))
	for i, item := range req.Items {
		draft, status, err := s.parseRequest(item)
		if err == nil {
			draft, err = s.prepare(ctx, draft)
		}
		if err != nil {
			failure := itemFailure(i, item.Date, err)
			if !req.PartialOnError {
				return nil, s.fail("bulk_create", appErrors.WithDetails(
					appErrors.Clone(appErrors.FromError(err), fmt.Sprintf("item %d: %s", i, failure.Message)),
					[]BulkItemFailure{failure},
				))
			}
			result.Failed = append(result.Failed, failure)
			continue
		}
		planned = append(planned, plannedPlacement{index: i, draft: draft, status: status})
	}

	return s.commitBatch(ctx, "bulk_create", planned, req.PartialOnError, result)
}

// CheckBatch is the dry-run form of BulkCreate: it reports every item that
// would fail, including items colliding with earlier items of the batch, and
// writes nothing. Created lists the entries that would be accepted.
func (s *PlacementService) CheckBatch(ctx context.Context, items []ScheduleEntryRequest) (*BulkCreateResult, error) {
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one item is required")
	}
	result := &BulkCreateResult{Created: []models.ScheduleEntry{}, Failed: []BulkItemFailure{}}
	planned := make([]plannedPlacement, 0, len(items))
	for i, item := range items {
		draft, status, err := s.parseRequest(item)
		if err == nil {
			draft, err = s.prepare(ctx, draft)
		}
		if err != nil {
			result.Failed = append(result.Failed, itemFailure(i, item.Date, err))
			continue
		}
		planned = append(planned, plannedPlacement{index: i, draft: draft, status: status})
	}

	created, failed, err := placeBatch(planned, true, func(d civil.Date) ([]models.ScheduleEntry, error) {
		return s.store.ListBetween(ctx, d, d)
	}, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entries")
	}
	result.Created = append(result.Created, created...)
	result.Failed = append(result.Failed, failed...)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Index < result.Failed[j].Index })
	return result, nil
}

// CreateRecurring expands an RRULE from StartDate and bulk creates one entry per occurrence.
func (s *PlacementService) CreateRecurring(ctx context.Context, req RecurringScheduleRequest) (*BulkCreateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.fail("recurring", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurring schedule payload"))
	}

	template, status, err := s.parseRequest(ScheduleEntryRequest{
		Date:      req.StartDate,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		RoomID:    req.RoomID,
		GroupID:   req.GroupID,
		Status:    req.Status,
	})
	if err != nil {
		return nil, s.fail("recurring", err)
	}
	template, err = s.prepare(ctx, template)
	if err != nil {
		return nil, s.fail("recurring", err)
	}

	except := make([]civil.Date, 0, len(req.ExceptDates))
	for _, raw := range req.ExceptDates {
		d, err := civil.ParseDate(strings.TrimSpace(raw))
		if err != nil {
			return nil, s.fail("recurring", validationError(fmt.Sprintf("invalid except date %q", raw), err))
		}
		except = append(except, d)
	}

	dates, err := s.ExpandRecurrence(req.RRule, template.Date, template.StartTime, except)
	if err != nil {
		return nil, s.fail("recurring", err)
	}

	planned := make([]plannedPlacement, 0, len(dates))
	for i, d := range dates {
		draft := template
		draft.Date = d
		planned = append(planned, plannedPlacement{index: i, draft: draft, status: status})
	}
	result := &BulkCreateResult{Created: []models.ScheduleEntry{}, Failed: []BulkItemFailure{}}
	return s.commitBatch(ctx, "recurring", planned, req.PartialOnError, result)
}

// ExpandRecurrence returns the occurrence dates of rule anchored at start. The
// rule must be bounded by COUNT or UNTIL and stay within the configured cap.
func (s *PlacementService) ExpandRecurrence(rule string, start civil.Date, at civil.Clock, except []civil.Date) ([]civil.Date, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return nil, validationError("invalid rrule", err)
	}
	if opt.Count == 0 && opt.Until.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rrule must be bounded by COUNT or UNTIL")
	}
	if opt.Freq > rrule.DAILY {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rrule FREQ must be DAILY, WEEKLY, MONTHLY or YEARLY")
	}
	if opt.Count > s.cfg.MaxOccurrences {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rrule COUNT exceeds the limit of %d occurrences", s.cfg.MaxOccurrences))
	}

	loc := s.cfg.Location
	opt.Dtstart = time.Date(start.Year, start.Month, start.Day, at.Hour(), at.Minute(), 0, 0, loc)
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, validationError("invalid rrule", err)
	}

	var set rrule.Set
	set.RRule(r)
	for _, d := range except {
		set.ExDate(time.Date(d.Year, d.Month, d.Day, at.Hour(), at.Minute(), 0, 0, loc))
	}

	next := set.Iterator()
	dates := make([]civil.Date, 0, s.cfg.MaxOccurrences)
	seen := make(map[civil.Date]bool, s.cfg.MaxOccurrences)
	for occurrence, ok := next(); ok; occurrence, ok = next() {
		if len(dates) == s.cfg.MaxOccurrences {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rrule produces more than %d occurrences", s.cfg.MaxOccurrences))
		}
		d := civil.DateOf(occurrence.In(loc))
		if seen[d] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rrule produces more than one occurrence on %s", d))
		}
		seen[d] = true
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rrule produced no occurrences")
	}
	return dates, nil
}

func (s *PlacementService) commitBatch(ctx context.Context, op string, planned []plannedPlacement, partial bool, result *BulkCreateResult) (*BulkCreateResult, error) {
	if len(planned) == 0 {
		s.metrics.ObservePlacement(op, OutcomeInvalid, nil)
		return result, nil
	}

	dates := make([]civil.Date, 0, len(planned))
	for _, p := range planned {
		dates = append(dates, p.draft.Date)
	}

	var created []models.ScheduleEntry
	var failed []BulkItemFailure
	err := s.store.Atomic(ctx, dates, func(tx repository.ScheduleTx) error {
		var err error
		created, failed, err = placeBatch(planned, partial,
			func(d civil.Date) ([]models.ScheduleEntry, error) { return tx.ListByDate(ctx, d) },
			func(e *models.ScheduleEntry) error { return tx.Insert(ctx, e) },
		)
		return err
	})
	if err != nil {
		return nil, s.fail(op, s.translate(ctx, op, planned[0].draft, err))
	}

	result.Created = append(result.Created, created...)
	result.Failed = append(result.Failed, failed...)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Index < result.Failed[j].Index })

	for _, f := range failed {
		s.metrics.ObservePlacement(op, OutcomeConflict, f.Conflicts.Reasons)
	}
	if len(created) > 0 {
		s.accepted(op, dates...)
	}
	s.logger.Info("schedule batch applied",
		zap.String("operation", op),
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// placeBatch checks each planned item against the entries of its date and the
// items placed before it. insert may be nil for a dry run.
func placeBatch(planned []plannedPlacement, partial bool, load func(civil.Date) ([]models.ScheduleEntry, error), insert func(*models.ScheduleEntry) error) ([]models.ScheduleEntry, []BulkItemFailure, error) {
	var created []models.ScheduleEntry
	var failed []BulkItemFailure
	byDate := make(map[civil.Date][]models.ScheduleEntry)
	for _, p := range planned {
		existing, loaded := byDate[p.draft.Date]
		if !loaded {
			var err error
			if existing, err = load(p.draft.Date); err != nil {
				return nil, nil, err
			}
		}
		if conflicts := timetable.FindConflicts(p.draft, existing); !conflicts.Empty() {
			if !partial {
				return nil, nil, conflictError(fmt.Sprintf("item %d on %s conflicts with existing entries", p.index, p.draft.Date), conflicts)
			}
			failed = append(failed, BulkItemFailure{
				Index:     p.index,
				Date:      p.draft.Date.String(),
				Code:      appErrors.ErrScheduleConflict.Code,
				Message:   appErrors.ErrScheduleConflict.Message,
				Conflicts: &conflicts,
			})
			byDate[p.draft.Date] = existing
			continue
		}
		entry := newEntry(p.draft, p.status)
		if insert != nil {
			if err := insert(&entry); err != nil {
				return nil, nil, err
			}
		}
		byDate[p.draft.Date] = append(existing, entry)
		created = append(created, entry)
	}
	return created, failed, nil
}

// parseRequest turns the wire form into a draft. It checks shape only.
func (s *PlacementService) parseRequest(req ScheduleEntryRequest) (models.ScheduleDraft, models.ScheduleStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.ScheduleDraft{}, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	date, err := civil.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return models.ScheduleDraft{}, "", validationError("date must be YYYY-MM-DD", err)
	}
	start, err := civil.ParseClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		return models.ScheduleDraft{}, "", validationError("startTime must be HH:MM", err)
	}
	end, err := civil.ParseClock(strings.TrimSpace(req.EndTime))
	if err != nil {
		return models.ScheduleDraft{}, "", validationError("endTime must be HH:MM", err)
	}
	status := models.ScheduleStatusPlanned
	if strings.TrimSpace(req.Status) != "" {
		parsed, ok := models.ParseScheduleStatus(req.Status)
		if !ok || !parsed.Active() {
			return models.ScheduleDraft{}, "", appErrors.Clone(appErrors.ErrValidation, "status must be PLANNED or MAKEUP")
		}
		status = parsed
	}
	return models.ScheduleDraft{
		Date:      date,
		StartTime: start,
		EndTime:   end,
		SubjectID: strings.TrimSpace(req.SubjectID),
		TeacherID: strings.TrimSpace(req.TeacherID),
		RoomID:    strings.TrimSpace(req.RoomID),
		GroupID:   strings.TrimSpace(req.GroupID),
	}, status, nil
}

func (s *PlacementService) parsePatch(req UpdateScheduleRequest) (models.ScheduleEntryPatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.ScheduleEntryPatch{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule update payload")
	}
	var patch models.ScheduleEntryPatch
	changed := false
	if req.Date != nil {
		d, err := civil.ParseDate(strings.TrimSpace(*req.Date))
		if err != nil {
			return patch, validationError("date must be YYYY-MM-DD", err)
		}
		patch.Date, changed = &d, true
	}
	if req.StartTime != nil {
		c, err := civil.ParseClock(strings.TrimSpace(*req.StartTime))
		if err != nil {
			return patch, validationError("startTime must be HH:MM", err)
		}
		patch.StartTime, changed = &c, true
	}
	if req.EndTime != nil {
		c, err := civil.ParseClock(strings.TrimSpace(*req.EndTime))
		if err != nil {
			return patch, validationError("endTime must be HH:MM", err)
		}
		patch.EndTime, changed = &c, true
	}
	for _, field := range []struct {
		src *string
		dst **string
	}{{req.SubjectID, &patch.SubjectID}, {req.RoomID, &patch.RoomID}, {req.GroupID, &patch.GroupID}} {
		if field.src != nil {
			v := strings.TrimSpace(*field.src)
			*field.dst, changed = &v, true
		}
	}
	if req.Status != nil {
		status, ok := models.ParseScheduleStatus(*req.Status)
		if !ok {
			return patch, appErrors.Clone(appErrors.ErrValidation, "status must be PLANNED, MAKEUP or CANCELLED")
		}
		patch.Status, changed = &status, true
	}
	if !changed {
		return patch, appErrors.Clone(appErrors.ErrValidation, "update must change at least one field")
	}
	return patch, nil
}

// prepare resolves the teacher from the subject and applies the structural rules.
func (s *PlacementService) prepare(ctx context.Context, draft models.ScheduleDraft) (models.ScheduleDraft, error) {
	teacherID, err := s.resolveTeacher(ctx, draft.SubjectID, draft.TeacherID)
	if err != nil {
		return draft, err
	}
	draft.TeacherID = teacherID
	if err := s.validateDraft(draft); err != nil {
		return draft, err
	}
	return draft, nil
}

func (s *PlacementService) resolveTeacher(ctx context.Context, subjectID, claimed string) (string, error) {
	if s.subjects == nil {
		if claimed == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
		}
		return claimed, nil
	}
	if subjectID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "subjectId is required")
	}
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown subject %q", subjectID))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject teacher")
	}
	if claimed != "" && claimed != subject.TeacherID {
		return "", appErrors.Clone(appErrors.ErrValidation, "teacherId does not match the teacher of the subject")
	}
	return subject.TeacherID, nil
}

func (s *PlacementService) validateDraft(draft models.ScheduleDraft) error {
	if err := s.rules.Validate(draft); err != nil {
		return validationError(err.Error(), err)
	}
	return nil
}

// translate turns store errors into API errors. An exclusion violation means a
// concurrent writer won the race past the lock; the conflicts are re-read so
// the caller still sees what it collided with.
func (s *PlacementService) translate(ctx context.Context, op string, draft models.ScheduleDraft, err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrOverlap):
		existing, rerr := s.store.ListBetween(ctx, draft.Date, draft.Date)
		if rerr != nil {
			s.logger.Error("reload after overlap violation failed", zap.Error(rerr))
			return appErrors.Clone(appErrors.ErrScheduleConflict, "schedule entry conflicts with a concurrent change")
		}
		result := timetable.FindConflicts(draft, existing)
		return conflictError("schedule entry conflicts with a concurrent change", result)
	case repository.IsNotFound(err):
		return appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "request cancelled")
	default:
		s.logger.Error("schedule write failed", zap.String("operation", op), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s schedule entry", strings.ReplaceAll(op, "_", " ")))
	}
}

// fail records the outcome of a rejected write and returns err as an *appErrors.Error.
func (s *PlacementService) fail(op string, err error) error {
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrScheduleConflict.Code:
		var reasons []models.ConflictReason
		if result, ok := appErr.Details.(models.ConflictResult); ok {
			reasons = result.Reasons
			s.logger.Info("schedule placement rejected",
				zap.String("operation", op),
				zap.Int("conflicts", len(result.Conflicts)),
				zap.Strings("entry_ids", conflictIDs(result)),
			)
		}
		s.metrics.ObservePlacement(op, OutcomeConflict, reasons)
	case appErrors.ErrValidation.Code:
		s.metrics.ObservePlacement(op, OutcomeInvalid, nil)
	case appErrors.ErrNotFound.Code:
	default:
		s.metrics.ObservePlacement(op, OutcomeError, nil)
	}
	return appErr
}

func (s *PlacementService) accepted(op string, dates ...civil.Date) {
	s.metrics.ObservePlacement(op, OutcomeAccepted, nil)
	if s.invalidator != nil {
		s.invalidator.InvalidateWeeks(context.Background(), dates...)
	}
}

func newEntry(draft models.ScheduleDraft, status models.ScheduleStatus) models.ScheduleEntry {
	return models.ScheduleEntry{
		Date:      draft.Date,
		StartTime: draft.StartTime,
		EndTime:   draft.EndTime,
		SubjectID: draft.SubjectID,
		TeacherID: draft.TeacherID,
		RoomID:    draft.RoomID,
		GroupID:   draft.GroupID,
		Status:    status,
	}
}

func conflictError(message string, result models.ConflictResult) *appErrors.Error {
	cause := &models.ScheduleConflictError{Message: message, Result: result}
	err := appErrors.Wrap(cause, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, message)
	return appErrors.WithDetails(err, result)
}

func validationError(message string, err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func itemFailure(index int, date string, err error) BulkItemFailure {
	appErr := appErrors.FromError(err)
	return BulkItemFailure{Index: index, Date: date, Code: appErr.Code, Message: appErr.Message}
}

func conflictIDs(result models.ConflictResult) []string {
	ids := make([]string, 0, len(result.Conflicts))
	for _, c := range result.Conflicts {
		ids = append(ids, c.Entry.ID)
	}
	return ids
}
