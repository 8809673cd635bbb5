package timetable

import (
	"errors"
	"fmt"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

var (
	ErrMissingDate      = errors.New("date is required")
	ErrInvalidInterval  = errors.New("startTime must be before endTime")
	ErrNotSlotAligned   = errors.New("interval is not aligned to the time slot catalog")
	ErrMissingReference = errors.New("subjectId, teacherId, roomId and groupId are required")
)

// DraftRules controls the structural checks applied before conflict detection.
type DraftRules struct {
	Catalog              *Catalog
	RequireSlotAlignment bool
}

// Validate rejects drafts on which conflict detection would be meaningless.
func (r DraftRules) Validate(draft models.ScheduleDraft) error {
	if draft.Date.IsZero() {
		return ErrMissingDate
	}
	if draft.SubjectID == "" || draft.TeacherID == "" || draft.RoomID == "" || draft.GroupID == "" {
		return ErrMissingReference
	}
	if !draft.StartTime.Valid() || !draft.EndTime.Valid() || draft.StartTime >= draft.EndTime {
		return ErrInvalidInterval
	}
	if r.RequireSlotAlignment && r.Catalog != nil {
		if _, ok := r.Catalog.AlignedRun(draft.StartTime, draft.EndTime); !ok {
			return fmt.Errorf("%w: %s-%s", ErrNotSlotAligned, draft.StartTime, draft.EndTime)
		}
	}
	return nil
}
