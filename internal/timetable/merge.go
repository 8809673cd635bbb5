package timetable

import (
	"sort"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

// Contiguity decides whether an entry ending at prevEnd is continued by one starting at nextStart.
type Contiguity func(prevEnd, nextStart civil.Clock) bool

// ExactContiguity only joins intervals that touch.
func ExactContiguity(prevEnd, nextStart civil.Clock) bool {
	return prevEnd == nextStart
}

// Group is a run of contiguous entries that share subject, teacher, room, group and status.
type Group struct {
	Date      civil.Date             `json:"date"`
	Start     civil.Clock            `json:"startTime"`
	End       civil.Clock            `json:"endTime"`
	SubjectID string                 `json:"subjectId"`
	TeacherID string                 `json:"teacherId"`
	RoomID    string                 `json:"roomId"`
	GroupID   string                 `json:"groupId"`
	Status    models.ScheduleStatus  `json:"status"`
	Entries   []models.ScheduleEntry `json:"entries"`
}

func newGroup(e models.ScheduleEntry) Group {
	return Group{
		Date:      e.Date,
		Start:     e.StartTime,
		End:       e.EndTime,
		SubjectID: e.SubjectID,
		TeacherID: e.TeacherID,
		RoomID:    e.RoomID,
		GroupID:   e.GroupID,
		Status:    e.Status,
		Entries:   []models.ScheduleEntry{e},
	}
}

func (g Group) sameSession(e models.ScheduleEntry) bool {
	return g.Date == e.Date &&
		g.SubjectID == e.SubjectID &&
		g.TeacherID == e.TeacherID &&
		g.RoomID == e.RoomID &&
		g.GroupID == e.GroupID &&
		g.Status == e.Status
}

// MergeConsecutive partitions entries into groups of back-to-back sessions. Every
// input entry lands in exactly one group and groups come back in start-time order.
// A nil contiguity means ExactContiguity.
func MergeConsecutive(entries []models.ScheduleEntry, contiguous Contiguity) []Group {
	if len(entries) == 0 {
		return nil
	}
	if contiguous == nil {
		contiguous = ExactContiguity
	}
	sorted := make([]models.ScheduleEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})

	var groups []Group
	current := newGroup(sorted[0])
	for _, entry := range sorted[1:] {
		if current.sameSession(entry) && contiguous(current.End, entry.StartTime) {
			current.Entries = append(current.Entries, entry)
			current.End = entry.EndTime
			continue
		}
		groups = append(groups, current)
		current = newGroup(entry)
	}
	return append(groups, current)
}
