package timetable

import (
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

func entry(id, date, start, end string) models.ScheduleEntry {
	return models.ScheduleEntry{
		ID:        id,
		Date:      civil.MustParseDate(date),
		StartTime: civil.MustParseClock(start),
		EndTime:   civil.MustParseClock(end),
		SubjectID: "math",
		TeacherID: "t1",
		RoomID:    "A101",
		GroupID:   "G1",
		Status:    models.ScheduleStatusPlanned,
	}
}

func draft(date, start, end string) models.ScheduleDraft {
	return models.ScheduleDraft{
		Date:      civil.MustParseDate(date),
		StartTime: civil.MustParseClock(start),
		EndTime:   civil.MustParseClock(end),
		SubjectID: "math",
		TeacherID: "t1",
		RoomID:    "A101",
		GroupID:   "G1",
	}
}
