package timetable

import (
	"fmt"

	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

// WeekLength is the number of columns in the timetable grid.
type WeekLength int

const (
	SixDayWeek   WeekLength = 6
	SevenDayWeek WeekLength = 7
)

// ParseWeekLength validates a configured or requested week length.
func ParseWeekLength(days int) (WeekLength, error) {
	l := WeekLength(days)
	if !l.Valid() {
		return 0, fmt.Errorf("week length must be 6 or 7 days, got %d", days)
	}
	return l, nil
}

// Valid reports whether l is a supported week length.
func (l WeekLength) Valid() bool {
	return l == SixDayWeek || l == SevenDayWeek
}

// WeekWindow is the Monday-anchored span forming the grid's column axis.
type WeekWindow struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(d civil.Date) int {
	wd := int(d.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// WeekWindowFor returns the week containing reference. Sunday rolls back to the
// Monday before it, never forward. An invalid length falls back to six days.
func WeekWindowFor(reference civil.Date, length WeekLength) WeekWindow {
	if !length.Valid() {
		length = SixDayWeek
	}
	monday := reference.AddDays(-(ISOWeekday(reference) - 1))
	return WeekWindow{Start: monday, End: monday.AddDays(int(length) - 1)}
}

// Length returns the number of days covered.
func (w WeekWindow) Length() int {
	return w.End.DaysSince(w.Start) + 1
}

// Days returns the column dates in order.
func (w WeekWindow) Days() []civil.Date {
	n := w.Length()
	days := make([]civil.Date, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, w.Start.AddDays(i))
	}
	return days
}

// Contains reports whether d falls inside [Start, End].
func (w WeekWindow) Contains(d civil.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Next returns the following week of the same length.
func (w WeekWindow) Next() WeekWindow {
	return WeekWindow{Start: w.Start.AddDays(7), End: w.End.AddDays(7)}
}

// Previous returns the preceding week of the same length.
func (w WeekWindow) Previous() WeekWindow {
	return WeekWindow{Start: w.Start.AddDays(-7), End: w.End.AddDays(-7)}
}
