package models

import (
	"strings"
	"time"

	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

// ScheduleStatus describes the lifecycle state of a schedule entry.
type ScheduleStatus string

const (
	ScheduleStatusPlanned   ScheduleStatus = "PLANNED"
	ScheduleStatusMakeup    ScheduleStatus = "MAKEUP"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
)

// ParseScheduleStatus normalises user supplied status values.
func ParseScheduleStatus(raw string) (ScheduleStatus, bool) {
	status := ScheduleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Valid reports whether the status is one of the known values.
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusPlanned, ScheduleStatusMakeup, ScheduleStatusCancelled:
		return true
	}
	return false
}

// Active reports whether entries with this status take part in conflict checks.
func (s ScheduleStatus) Active() bool {
	return s != ScheduleStatusCancelled
}

// ScheduleEntry is one concrete occurrence of a subject taught to a group in a room.
type ScheduleEntry struct {
	ID        string         `db:"id" json:"id"`
	Date      civil.Date     `db:"entry_date" json:"date"`
	StartTime civil.Clock    `db:"start_minute" json:"startTime"`
	EndTime   civil.Clock    `db:"end_minute" json:"endTime"`
	SubjectID string         `db:"subject_id" json:"subjectId"`
	TeacherID string         `db:"teacher_id" json:"teacherId"`
	RoomID    string         `db:"room_id" json:"roomId"`
	GroupID   string         `db:"group_id" json:"groupId"`
	Status    ScheduleStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// Draft returns the placement fields of the entry as a draft excluding the entry itself.
func (e ScheduleEntry) Draft() ScheduleDraft {
	return ScheduleDraft{
		Date:      e.Date,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		SubjectID: e.SubjectID,
		TeacherID: e.TeacherID,
		RoomID:    e.RoomID,
		GroupID:   e.GroupID,
		ExcludeID: e.ID,
	}
}

// ScheduleDraft is a resolved candidate placement that has not been persisted.
type ScheduleDraft struct {
	Date      civil.Date  `json:"date"`
	StartTime civil.Clock `json:"startTime"`
	EndTime   civil.Clock `json:"endTime"`
	SubjectID string      `json:"subjectId"`
	TeacherID string      `json:"teacherId"`
	RoomID    string      `json:"roomId"`
	GroupID   string      `json:"groupId"`
	ExcludeID string      `json:"excludeId,omitempty"`
}

// ScheduleEntryPatch carries optional changes applied on top of an existing entry.
// TeacherID is intentionally absent: it follows the subject.
type ScheduleEntryPatch struct {
	Date      *civil.Date
	StartTime *civil.Clock
	EndTime   *civil.Clock
	SubjectID *string
	RoomID    *string
	GroupID   *string
	Status    *ScheduleStatus
}

// Apply returns a copy of entry with the patch merged in.
func (p ScheduleEntryPatch) Apply(entry ScheduleEntry) ScheduleEntry {
	if p.Date != nil {
		entry.Date = *p.Date
	}
	if p.StartTime != nil {
		entry.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		entry.EndTime = *p.EndTime
	}
	if p.SubjectID != nil {
		entry.SubjectID = *p.SubjectID
	}
	if p.RoomID != nil {
		entry.RoomID = *p.RoomID
	}
	if p.GroupID != nil {
		entry.GroupID = *p.GroupID
	}
	if p.Status != nil {
		entry.Status = *p.Status
	}
	return entry
}

// ScheduleFilter describes query params for listing schedule entries.
type ScheduleFilter struct {
	From             civil.Date
	To               civil.Date
	RoomID           string
	TeacherID        string
	GroupID          string
	SubjectID        string
	Status           ScheduleStatus
	IncludeCancelled bool
	Page             int
	PageSize         int
}

// ConflictReason names the shared resource that makes two entries collide.
type ConflictReason string

const (
	ConflictReasonRoom    ConflictReason = "ROOM"
	ConflictReasonTeacher ConflictReason = "TEACHER"
	ConflictReasonGroup   ConflictReason = "GROUP"
)

// ConflictReasonOrder is the canonical reporting order for reasons.
var ConflictReasonOrder = []ConflictReason{ConflictReasonRoom, ConflictReasonTeacher, ConflictReasonGroup}

// ScheduleConflict pairs an existing entry with the reasons it collides with a candidate.
type ScheduleConflict struct {
	Entry   ScheduleEntry    `json:"entry"`
	Reasons []ConflictReason `json:"reasons"`
}

// ConflictResult is the outcome of conflict detection for one candidate.
type ConflictResult struct {
	Conflicts []ScheduleConflict `json:"conflicts"`
	Reasons   []ConflictReason   `json:"reasons"`
}

// Empty reports whether the candidate may be accepted.
func (r ConflictResult) Empty() bool {
	return len(r.Conflicts) == 0
}

// Entries returns the conflicting entries without reasons.
func (r ConflictResult) Entries() []ScheduleEntry {
	out := make([]ScheduleEntry, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		out = append(out, c.Entry)
	}
	return out
}

// ScheduleConflictError is returned when a placement collides with accepted entries.
type ScheduleConflictError struct {
	Message string         `json:"message"`
	Result  ConflictResult `json:"result"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
