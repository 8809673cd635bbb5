package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

func TestWeekWindowForSundayRollsBack(t *testing.T) {
	window := WeekWindowFor(civil.MustParseDate("2025-03-09"), SixDayWeek)
	assert.Equal(t, civil.MustParseDate("2025-03-03"), window.Start)
	assert.Equal(t, civil.MustParseDate("2025-03-08"), window.End)

	window = WeekWindowFor(civil.MustParseDate("2025-03-09"), SevenDayWeek)
	assert.Equal(t, civil.MustParseDate("2025-03-03"), window.Start)
	assert.Equal(t, civil.MustParseDate("2025-03-09"), window.End)
}

func TestWeekWindowForMidweek(t *testing.T) {
	window := WeekWindowFor(civil.MustParseDate("2025-03-05"), SixDayWeek)
	assert.Equal(t, civil.MustParseDate("2025-03-03"), window.Start)
	assert.Equal(t, 6, window.Length())

	days := window.Days()
	require.Len(t, days, 6)
	assert.Equal(t, time.Monday, days[0].Weekday())
	assert.Equal(t, time.Saturday, days[5].Weekday())
}

func TestWeekWindowForInvalidLengthDefaultsToSix(t *testing.T) {
	window := WeekWindowFor(civil.MustParseDate("2025-03-05"), WeekLength(3))
	assert.Equal(t, 6, window.Length())
}

func TestWeekWindowProperties(t *testing.T) {
	start := civil.MustParseDate("2024-01-01")
	for _, length := range []WeekLength{SixDayWeek, SevenDayWeek} {
		for i := 0; i < 731; i++ {
			d := start.AddDays(i)
			window := WeekWindowFor(d, length)

			require.Equal(t, time.Monday, window.Start.Weekday(), "date %s", d)
			require.Equal(t, int(length), window.Length(), "date %s", d)
			require.Equal(t, window, WeekWindowFor(window.Start, length), "idempotent for %s", d)

			if length == SevenDayWeek || d.Weekday() != time.Sunday {
				require.True(t, window.Contains(d), "date %s in %s..%s", d, window.Start, window.End)
			} else {
				require.Equal(t, window.End.AddDays(1), d, "sunday sits just past a six-day week")
			}
		}
	}
}

func TestWeekWindowNavigation(t *testing.T) {
	window := WeekWindowFor(civil.MustParseDate("2025-03-03"), SixDayWeek)
	assert.Equal(t, civil.MustParseDate("2025-03-10"), window.Next().Start)
	assert.Equal(t, civil.MustParseDate("2025-02-24"), window.Previous().Start)
	assert.Equal(t, civil.MustParseDate("2025-03-01"), window.Previous().End)
}

func TestParseWeekLength(t *testing.T) {
	l, err := ParseWeekLength(7)
	require.NoError(t, err)
	assert.Equal(t, SevenDayWeek, l)

	_, err = ParseWeekLength(5)
	assert.Error(t, err)
}

func TestISOWeekday(t *testing.T) {
	assert.Equal(t, 1, ISOWeekday(civil.MustParseDate("2025-03-03")))
	assert.Equal(t, 7, ISOWeekday(civil.MustParseDate("2025-03-09")))
}
