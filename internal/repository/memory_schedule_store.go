package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

// MemoryScheduleStore is a process-local schedule store. Writes run against a
// staged copy under one mutex and are published only when fn succeeds and the
// staged state still has no overlapping active entries.
type MemoryScheduleStore struct {
	mu      sync.RWMutex
	entries map[string]models.ScheduleEntry
	now     func() time.Time
}

// NewMemoryScheduleStore returns an empty store.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{
		entries: make(map[string]models.ScheduleEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List mirrors ScheduleEntryRepository.List.
func (s *MemoryScheduleStore) List(_ context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.ScheduleEntry
	for _, e := range s.entries {
		if matchesFilter(e, filter) {
			matched = append(matched, e)
		}
	}
	sortEntries(matched)

	total := len(matched)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * filter.PageSize
		if start > total {
			start = total
		}
		end := start + filter.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

// ListBetween returns every entry, cancelled included, dated within [from, to].
func (s *MemoryScheduleStore) ListBetween(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error) {
	entries, _, err := s.List(ctx, models.ScheduleFilter{From: from, To: to, IncludeCancelled: true})
	return entries, err
}

// FindByID returns an entry by id or sql.ErrNoRows.
func (s *MemoryScheduleStore) FindByID(_ context.Context, id string) (*models.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

// Atomic runs fn against a staged copy of the store. The dates argument is
// accepted for parity with the SQL store; the single mutex covers every date.
func (s *MemoryScheduleStore) Atomic(ctx context.Context, _ []civil.Date, fn func(tx ScheduleTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]models.ScheduleEntry, len(s.entries))
	for id, e := range s.entries {
		staged[id] = e
	}
	tx := &memoryTx{entries: staged, now: s.now, touched: make(map[civil.Date]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.overlaps() {
		return ErrOverlap
	}
	s.entries = staged
	return nil
}

type memoryTx struct {
	entries map[string]models.ScheduleEntry
	now     func() time.Time
	touched map[civil.Date]bool
}

func (t *memoryTx) ListByDate(_ context.Context, date civil.Date) ([]models.ScheduleEntry, error) {
	var out []models.ScheduleEntry
	for _, e := range t.entries {
		if e.Date == date {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (t *memoryTx) FindByID(_ context.Context, id string) (*models.ScheduleEntry, error) {
	e, ok := t.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (t *memoryTx) Insert(_ context.Context, entry *models.ScheduleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, exists := t.entries[entry.ID]; exists {
		return ErrDuplicate
	}
	now := t.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	t.entries[entry.ID] = *entry
	t.touched[entry.Date] = true
	return nil
}

func (t *memoryTx) Update(_ context.Context, entry *models.ScheduleEntry) error {
	prev, ok := t.entries[entry.ID]
	if !ok {
		return sql.ErrNoRows
	}
	entry.CreatedAt = prev.CreatedAt
	entry.UpdatedAt = t.now()
	t.entries[entry.ID] = *entry
	t.touched[prev.Date] = true
	t.touched[entry.Date] = true
	return nil
}

func (t *memoryTx) Delete(_ context.Context, id string) error {
	if _, ok := t.entries[id]; !ok {
		return sql.ErrNoRows
	}
	delete(t.entries, id)
	return nil
}

// overlaps re-checks the touched dates the way the PostgreSQL exclusion constraints do.
func (t *memoryTx) overlaps() bool {
	byDate := make(map[civil.Date][]models.ScheduleEntry)
	for _, e := range t.entries {
		if t.touched[e.Date] && e.Status.Active() {
			byDate[e.Date] = append(byDate[e.Date], e)
		}
	}
	for _, day := range byDate {
		for i := 0; i < len(day); i++ {
			for j := i + 1; j < len(day); j++ {
				a, b := day[i], day[j]
				if a.StartTime >= b.EndTime || b.StartTime >= a.EndTime {
					continue
				}
				if a.RoomID == b.RoomID || a.TeacherID == b.TeacherID || a.GroupID == b.GroupID {
					return true
				}
			}
		}
	}
	return false
}

func matchesFilter(e models.ScheduleEntry, f models.ScheduleFilter) bool {
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if f.RoomID != "" && e.RoomID != f.RoomID {
		return false
	}
	if f.TeacherID != "" && e.TeacherID != f.TeacherID {
		return false
	}
	if f.GroupID != "" && e.GroupID != f.GroupID {
		return false
	}
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.Status != "" {
		return e.Status == f.Status
	}
	return f.IncludeCancelled || e.Status.Active()
}

func sortEntries(entries []models.ScheduleEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}
