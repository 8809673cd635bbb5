package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

const scheduleEntryColumns = "id, entry_date, start_minute, end_minute, subject_id, teacher_id, room_id, group_id, status, created_at, updated_at"

// ScheduleTx is the schedule store as seen from inside a locked write transaction.
type ScheduleTx interface {
	ListByDate(ctx context.Context, date civil.Date) ([]models.ScheduleEntry, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	Insert(ctx context.Context, entry *models.ScheduleEntry) error
	Update(ctx context.Context, entry *models.ScheduleEntry) error
	Delete(ctx context.Context, id string) error
}

// ScheduleEntryRepository persists schedule entries in PostgreSQL or SQLite.
type ScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewScheduleEntryRepository creates a new schedule entry repository.
func NewScheduleEntryRepository(db *sqlx.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

// List returns entries matching filter ordered by date and start time, with the total count.
func (r *ScheduleEntryRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, int, error) {
	base := "FROM schedule_entries WHERE 1=1"
	var conditions []string
	var args []interface{}

	if !filter.From.IsZero() {
		conditions = append(conditions, "entry_date >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "entry_date <= ?")
		args = append(args, filter.To)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, "teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	if filter.GroupID != "" {
		conditions = append(conditions, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	switch {
	case filter.Status != "":
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	case !filter.IncludeCancelled:
		conditions = append(conditions, "status <> ?")
		args = append(args, string(models.ScheduleStatusCancelled))
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY entry_date ASC, start_minute ASC, id ASC", scheduleEntryColumns, base)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PageSize, (page-1)*filter.PageSize)
	}

	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule entries: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule entries: %w", err)
	}
	return entries, total, nil
}

// ListBetween returns every entry, cancelled included, dated within [from, to].
func (r *ScheduleEntryRepository) ListBetween(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error) {
	entries, _, err := r.List(ctx, models.ScheduleFilter{From: from, To: to, IncludeCancelled: true})
	return entries, err
}

// FindByID returns an entry by id or sql.ErrNoRows.
func (r *ScheduleEntryRepository) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	return findEntry(ctx, r.db, id)
}

// Atomic runs fn inside one transaction holding the write lock for every date in
// dates. On PostgreSQL the lock is a transaction scoped advisory lock per date,
// taken in ascending order so two writers touching the same pair of dates cannot
// deadlock. SQLite connections open with _txlock=immediate and serialize on BEGIN.
func (r *ScheduleEntryRepository) Atomic(ctx context.Context, dates []civil.Date, fn func(tx ScheduleTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if r.db.DriverName() == "postgres" {
		for _, date := range lockOrder(dates) {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "schedule:"+date.String()); err != nil {
				return fmt.Errorf("lock schedule date %s: %w", date, err)
			}
		}
	}

	if err := fn(&scheduleTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule transaction: %w", translate(err))
	}
	return nil
}

// lockOrder returns the distinct dates in ascending order.
func lockOrder(dates []civil.Date) []civil.Date {
	seen := make(map[civil.Date]bool, len(dates))
	out := make([]civil.Date, 0, len(dates))
	for _, d := range dates {
		if d.IsZero() || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

type scheduleTx struct {
	tx *sqlx.Tx
}

func (t *scheduleTx) ListByDate(ctx context.Context, date civil.Date) ([]models.ScheduleEntry, error) {
	query := t.tx.Rebind(fmt.Sprintf("SELECT %s FROM schedule_entries WHERE entry_date = ? ORDER BY start_minute ASC, id ASC", scheduleEntryColumns))
	var entries []models.ScheduleEntry
	if err := t.tx.SelectContext(ctx, &entries, query, date); err != nil {
		return nil, fmt.Errorf("list schedule entries for %s: %w", date, err)
	}
	return entries, nil
}

func (t *scheduleTx) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	return findEntry(ctx, t.tx, id)
}

func (t *scheduleTx) Insert(ctx context.Context, entry *models.ScheduleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO schedule_entries (id, entry_date, start_minute, end_minute, subject_id, teacher_id, room_id, group_id, status, created_at, updated_at)
VALUES (:id, :entry_date, :start_minute, :end_minute, :subject_id, :teacher_id, :room_id, :group_id, :status, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert schedule entry: %w", translate(err))
	}
	return nil
}

func (t *scheduleTx) Update(ctx context.Context, entry *models.ScheduleEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedule_entries SET entry_date = :entry_date, start_minute = :start_minute, end_minute = :end_minute,
subject_id = :subject_id, teacher_id = :teacher_id, room_id = :room_id, group_id = :group_id, status = :status, updated_at = :updated_at
WHERE id = :id`
	res, err := t.tx.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("update schedule entry: %w", translate(err))
	}
	return expectAffected(res)
}

func (t *scheduleTx) Delete(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`DELETE FROM schedule_entries WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete schedule entry: %w", err)
	}
	return expectAffected(res)
}

type rebindQueryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func findEntry(ctx context.Context, q rebindQueryer, id string) (*models.ScheduleEntry, error) {
	query := q.Rebind(fmt.Sprintf("SELECT %s FROM schedule_entries WHERE id = ?", scheduleEntryColumns))
	var entry models.ScheduleEntry
	if err := sqlx.GetContext(ctx, q, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
