package timetable

import (
	"sort"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

// Overlaps reports whether the half-open intervals [aStart, aEnd) and [bStart, bEnd)
// share any minute. Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd civil.Clock) bool {
	return aStart < bEnd && bStart < aEnd
}

// FindConflicts returns every active entry in existing that shares a room, teacher
// or group with candidate on the same date and overlaps it in time. The entry named
// by candidate.ExcludeID is ignored so an edit never collides with itself.
func FindConflicts(candidate models.ScheduleDraft, existing []models.ScheduleEntry) models.ConflictResult {
	result := models.ConflictResult{
		Conflicts: []models.ScheduleConflict{},
		Reasons:   []models.ConflictReason{},
	}
	seen := make(map[models.ConflictReason]bool, len(models.ConflictReasonOrder))

	for _, e := range existing {
		if candidate.ExcludeID != "" && e.ID == candidate.ExcludeID {
			continue
		}
		if !e.Status.Active() || e.Date != candidate.Date {
			continue
		}
		if !Overlaps(candidate.StartTime, candidate.EndTime, e.StartTime, e.EndTime) {
			continue
		}
		reasons := conflictReasons(candidate, e)
		if len(reasons) == 0 {
			continue
		}
		for _, r := range reasons {
			seen[r] = true
		}
		result.Conflicts = append(result.Conflicts, models.ScheduleConflict{Entry: e, Reasons: reasons})
	}

	sort.SliceStable(result.Conflicts, func(i, j int) bool {
		a, b := result.Conflicts[i].Entry, result.Conflicts[j].Entry
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
	for _, r := range models.ConflictReasonOrder {
		if seen[r] {
			result.Reasons = append(result.Reasons, r)
		}
	}
	return result
}

func conflictReasons(candidate models.ScheduleDraft, e models.ScheduleEntry) []models.ConflictReason {
	var reasons []models.ConflictReason
	if e.RoomID == candidate.RoomID {
		reasons = append(reasons, models.ConflictReasonRoom)
	}
	if e.TeacherID == candidate.TeacherID {
		reasons = append(reasons, models.ConflictReasonTeacher)
	}
	if e.GroupID == candidate.GroupID {
		reasons = append(reasons, models.ConflictReasonGroup)
	}
	return reasons
}
