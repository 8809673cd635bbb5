package models

import "github.com/noah-isme/campus-timetable-api/pkg/civil"

// TimeSlot is a fixed teaching interval within a day, used as a timetable row.
type TimeSlot struct {
	ID    string      `json:"id"`
	Start civil.Clock `json:"start"`
	End   civil.Clock `json:"end"`
}

// Contains reports whether t falls within [Start, End).
func (s TimeSlot) Contains(t civil.Clock) bool {
	return s.Start <= t && t < s.End
}

// Minutes returns the slot length.
func (s TimeSlot) Minutes() int {
	return int(s.End - s.Start)
}
