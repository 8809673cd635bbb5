package timetable

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// CellMapper resolves which entry occupies a (day, slot) cell.
type CellMapper struct {
	IncludeCancelled bool
	Logger           *zap.Logger
}

// CellFor returns the active entry that starts inside slot on the given weekday, or nil.
func CellFor(entries []models.ScheduleEntry, day time.Weekday, slot models.TimeSlot) *models.ScheduleEntry {
	return CellMapper{}.CellFor(entries, day, slot)
}

// CellFor returns the entry whose date falls on day and whose start lies in
// [slot.Start, slot.End). Several matches indicate corrupted data: the lowest id
// wins and the anomaly is logged.
func (m CellMapper) CellFor(entries []models.ScheduleEntry, day time.Weekday, slot models.TimeSlot) *models.ScheduleEntry {
	matches := m.EntriesInCell(entries, day, slot)
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > 1 {
		m.logger().Warn("multiple schedule entries share a timetable cell",
			zap.String("day", day.String()),
			zap.String("slot", slot.ID),
			zap.Strings("entry_ids", entryIDs(matches)),
		)
	}
	chosen := matches[0]
	return &chosen
}

// EntriesInCell returns every matching entry ordered by id.
func (m CellMapper) EntriesInCell(entries []models.ScheduleEntry, day time.Weekday, slot models.TimeSlot) []models.ScheduleEntry {
	var matches []models.ScheduleEntry
	for _, entry := range entries {
		if !m.IncludeCancelled && !entry.Status.Active() {
			continue
		}
		if entry.Date.Weekday() != day || !slot.Contains(entry.StartTime) {
			continue
		}
		matches = append(matches, entry)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

func (m CellMapper) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

func entryIDs(entries []models.ScheduleEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
