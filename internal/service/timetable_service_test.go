package service

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type stubCacheRepo struct {
	store   map[string][]byte
	deleted []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.deleted = append(s.deleted, pattern)
	for key := range s.store {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.store, key)
		}
	}
	return nil
}

func (s *stubCacheRepo) Incr(_ context.Context, key string) (int64, error) {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	var n int64
	if payload, ok := s.store[key]; ok {
		if err := json.Unmarshal(payload, &n); err != nil {
			return 0, err
		}
	}
	n++
	payload, err := json.Marshal(n)
	if err != nil {
		return 0, err
	}
	s.store[key] = payload
	return n, nil
}

// interleavedReader runs onRead after loading entries, once, to model a write
// committing while a grid is being built.
type interleavedReader struct {
	scheduleReader
	onRead func()
}

func (r *interleavedReader) ListBetween(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error) {
	entries, err := r.scheduleReader.ListBetween(ctx, from, to)
	if hook := r.onRead; hook != nil {
		r.onRead = nil
		hook()
	}
	return entries, err
}

type timetableFixture struct {
	timetable *TimetableService
	placement *PlacementService
	cache     *stubCacheRepo
	metrics   *MetricsService
}

func newTimetableFixture(t *testing.T) timetableFixture {
	t.Helper()
	store := repository.NewMemoryScheduleStore()
	rooms := repository.NewMemoryRoomRepository(
		models.Room{ID: "A101", Code: "A101", Capacity: 40},
		models.Room{ID: "B202", Code: "B202", Capacity: 30},
		models.Room{ID: "C303", Code: "C303", Capacity: 20},
	)
	cacheRepo := &stubCacheRepo{}
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true)
	tt := NewTimetableService(store, rooms, cache, metrics, TimetableConfig{}, zap.NewNop())
	tt.now = func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) }
	placement := NewPlacementService(store, seedSubjects(), PlacementConfig{}, nil, metrics, tt, zap.NewNop())
	return timetableFixture{timetable: tt, placement: placement, cache: cacheRepo, metrics: metrics}
}

func TestTimetableWeekDefaults(t *testing.T) {
	f := newTimetableFixture(t)

	window, err := f.timetable.Week(civil.Date{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", window.Start.String())
	assert.Equal(t, "2025-03-08", window.End.String())

	window, err = f.timetable.Week(civil.MustParseDate("2025-03-09"), 7)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", window.End.String())

	_, err = f.timetable.Week(civil.Date{}, 5)
	requireAppError(t, err, appErrors.ErrValidation.Code)

	assert.Len(t, f.timetable.Slots(), 5)
}

func TestTimetableWeekGridCachesAndInvalidates(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()

	first, err := f.placement.Create(ctx, placement("2025-03-03", "08:30", "10:00", "math", "A101", "G1"))
	require.NoError(t, err)
	_, err = f.placement.Create(ctx, placement("2025-03-03", "10:10", "11:40", "math", "A101", "G1"))
	require.NoError(t, err)

	q := WeekQuery{Date: civil.MustParseDate("2025-03-05"), Scope: timetable.Scope{GroupID: "G1"}}
	grid, cached, err := f.timetable.WeekGrid(ctx, q)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, grid.Days, 6)
	monday := grid.Days[0]
	require.NotNil(t, monday.Cells[0].Entry)
	assert.Equal(t, first.ID, monday.Cells[0].Entry.ID)
	require.Len(t, monday.Blocks, 1)
	assert.Len(t, monday.Blocks[0].Entries, 2)
	assert.Empty(t, grid.Days[1].Blocks)

	again, cached, err := f.timetable.WeekGrid(ctx, q)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, grid.Window, again.Window)
	assert.Equal(t, first.ID, again.Days[0].Cells[0].Entry.ID)

	_, err = f.placement.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Contains(t, f.cache.deleted, "timetable:week:2025-03-03:*")

	fresh, cached, err := f.timetable.WeekGrid(ctx, q)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Nil(t, fresh.Days[0].Cells[0].Entry)

	withCancelled, _, err := f.timetable.WeekGrid(ctx, WeekQuery{Date: q.Date, Scope: q.Scope, IncludeCancelled: true})
	require.NoError(t, err)
	require.NotNil(t, withCancelled.Days[0].Cells[0].Entry)
	assert.Equal(t, models.ScheduleStatusCancelled, withCancelled.Days[0].Cells[0].Entry.Status)

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
}

func TestTimetableOverviewListsParallelRooms(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()

	_, err := f.placement.Create(ctx, placement("2025-03-04", "08:30", "10:00", "math", "A101", "G1"))
	require.NoError(t, err)
	_, err = f.placement.Create(ctx, placement("2025-03-04", "08:30", "10:00", "phys", "B202", "G2"))
	require.NoError(t, err)

	grid, _, err := f.timetable.WeekGrid(ctx, WeekQuery{Date: civil.MustParseDate("2025-03-04"), Days: 7})
	require.NoError(t, err)
	require.Len(t, grid.Days, 7)
	assert.Len(t, grid.Days[1].Cells[0].Entries, 2)
	assert.Nil(t, grid.Days[1].Cells[0].Entry)
	assert.Zero(t, grid.Anomalies)
}

func TestTimetableFreeRooms(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()

	_, err := f.placement.Create(ctx, placement("2025-03-03", "09:00", "09:45", "math", "A101", "G1"))
	require.NoError(t, err)

	rooms, err := f.timetable.FreeRooms(ctx, civil.MustParseDate("2025-03-03"), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B202", "C303"}, rooms)

	rooms, err = f.timetable.FreeRooms(ctx, civil.MustParseDate("2025-03-03"), "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"A101", "B202", "C303"}, rooms)

	_, err = f.timetable.FreeRooms(ctx, civil.MustParseDate("2025-03-03"), "99")
	requireAppError(t, err, appErrors.ErrValidation.Code)

	noRooms := NewTimetableService(repository.NewMemoryScheduleStore(), nil, nil, nil, TimetableConfig{}, nil)
	_, err = noRooms.FreeRooms(ctx, civil.MustParseDate("2025-03-03"), "1")
	requireAppError(t, err, appErrors.ErrUnavailable.Code)
}

func TestTimetableEntriesFiltersScope(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()

	_, err := f.placement.Create(ctx, placement("2025-03-03", "08:30", "10:00", "math", "A101", "G1"))
	require.NoError(t, err)
	other, err := f.placement.Create(ctx, placement("2025-03-03", "08:30", "10:00", "phys", "B202", "G2"))
	require.NoError(t, err)

	entries, err := f.timetable.Entries(ctx, civil.MustParseDate("2025-03-01"), civil.MustParseDate("2025-03-31"), timetable.Scope{TeacherID: "t2"}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, other.ID, entries[0].ID)

	_, err = f.timetable.Entries(ctx, civil.MustParseDate("2025-03-31"), civil.MustParseDate("2025-03-01"), timetable.Scope{}, false)
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestTimetableWeekGridIgnoresGridBuiltDuringWrite(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryScheduleStore()
	reader := &interleavedReader{scheduleReader: store}
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	tt := NewTimetableService(reader, nil, cache, nil, TimetableConfig{}, zap.NewNop())
	placer := NewPlacementService(store, seedSubjects(), PlacementConfig{}, nil, nil, tt, zap.NewNop())

	var written *models.ScheduleEntry
	reader.onRead = func() {
		var err error
		written, err = placer.Create(ctx, placement("2025-03-03", "08:30", "10:00", "math", "A101", "G1"))
		require.NoError(t, err)
	}

	q := WeekQuery{Date: civil.MustParseDate("2025-03-03"), Scope: timetable.Scope{GroupID: "G1"}}
	stale, cached, err := tt.WeekGrid(ctx, q)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Nil(t, stale.Days[0].Cells[0].Entry)
	require.NotNil(t, written)

	fresh, cached, err := tt.WeekGrid(ctx, q)
	require.NoError(t, err)
	assert.False(t, cached)
	require.NotNil(t, fresh.Days[0].Cells[0].Entry)
	assert.Equal(t, written.ID, fresh.Days[0].Cells[0].Entry.ID)

	again, cached, err := tt.WeekGrid(ctx, q)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, written.ID, again.Days[0].Cells[0].Entry.ID)
}
