package timetable

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

// Scope narrows a grid to one room, teacher or group. The zero Scope is the
// unfiltered overview used by administrators.
type Scope struct {
	RoomID    string `json:"roomId,omitempty"`
	TeacherID string `json:"teacherId,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
}

// IsZero reports whether the scope selects everything.
func (s Scope) IsZero() bool {
	return s.RoomID == "" && s.TeacherID == "" && s.GroupID == ""
}

// Matches reports whether e belongs to the scope.
func (s Scope) Matches(e models.ScheduleEntry) bool {
	if s.RoomID != "" && e.RoomID != s.RoomID {
		return false
	}
	if s.TeacherID != "" && e.TeacherID != s.TeacherID {
		return false
	}
	if s.GroupID != "" && e.GroupID != s.GroupID {
		return false
	}
	return true
}

// Key is a stable textual form used in cache keys.
func (s Scope) Key() string {
	return fmt.Sprintf("room=%s|teacher=%s|group=%s", s.RoomID, s.TeacherID, s.GroupID)
}

// ParseScopeKey reverses Key.
func ParseScopeKey(key string) (Scope, error) {
	var scope Scope
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return scope, fmt.Errorf("malformed scope key %q", key)
	}
	targets := []struct {
		name string
		dst  *string
	}{{"room", &scope.RoomID}, {"teacher", &scope.TeacherID}, {"group", &scope.GroupID}}
	for i, part := range parts {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name != targets[i].name {
			return Scope{}, fmt.Errorf("malformed scope key %q", key)
		}
		*targets[i].dst = value
	}
	return scope, nil
}

// Cell is one (day, slot) position of the grid. Scoped grids fill Entry; the
// overview fills Entries since many rooms run in parallel.
type Cell struct {
	SlotID         string                 `json:"slotId"`
	Entry          *models.ScheduleEntry  `json:"entry,omitempty"`
	Entries        []models.ScheduleEntry `json:"entries,omitempty"`
	ContinuationOf string                 `json:"continuationOf,omitempty"`
}

// DayColumn holds the cells and merged blocks of one date.
type DayColumn struct {
	Date    civil.Date `json:"date"`
	Weekday string     `json:"weekday"`
	Cells   []Cell     `json:"cells"`
	Blocks  []Group    `json:"blocks"`
}

// WeekGrid is the full weekly timetable for a scope.
type WeekGrid struct {
	Window    WeekWindow        `json:"window"`
	Slots     []models.TimeSlot `json:"slots"`
	Scope     Scope             `json:"scope"`
	Days      []DayColumn       `json:"days"`
	Anomalies int               `json:"anomalies"`
}

// GridBuilder assembles week grids from already-fetched entries.
type GridBuilder struct {
	Catalog          *Catalog
	IncludeCancelled bool
	Logger           *zap.Logger
}

// Build lays entries out over window for scope. Entries outside the window or scope are ignored.
func (b GridBuilder) Build(window WeekWindow, scope Scope, entries []models.ScheduleEntry) WeekGrid {
	mapper := CellMapper{IncludeCancelled: b.IncludeCancelled, Logger: b.Logger}
	slots := b.Catalog.AllSlots()

	byDate := make(map[civil.Date][]models.ScheduleEntry)
	for _, e := range entries {
		if !window.Contains(e.Date) || !scope.Matches(e) {
			continue
		}
		if !b.IncludeCancelled && !e.Status.Active() {
			continue
		}
		byDate[e.Date] = append(byDate[e.Date], e)
	}

	grid := WeekGrid{Window: window, Slots: slots, Scope: scope}
	for _, date := range window.Days() {
		dayEntries := byDate[date]
		column := DayColumn{Date: date, Weekday: date.Weekday().String(), Cells: make([]Cell, 0, len(slots))}
		for _, slot := range slots {
			cell := Cell{SlotID: slot.ID}
			if scope.IsZero() {
				cell.Entries = mapper.EntriesInCell(dayEntries, date.Weekday(), slot)
			} else {
				if len(mapper.EntriesInCell(dayEntries, date.Weekday(), slot)) > 1 {
					grid.Anomalies++
				}
				cell.Entry = mapper.CellFor(dayEntries, date.Weekday(), slot)
				if cell.Entry == nil {
					cell.ContinuationOf = continuation(dayEntries, slot)
				}
			}
			column.Cells = append(column.Cells, cell)
		}
		column.Blocks = MergeConsecutive(dayEntries, b.Catalog.Contiguity())
		if column.Blocks == nil {
			column.Blocks = []Group{}
		}
		grid.Days = append(grid.Days, column)
	}
	return grid
}

// continuation returns the id of an entry that started in an earlier slot and is
// still running when slot opens.
func continuation(entries []models.ScheduleEntry, slot models.TimeSlot) string {
	var ids []string
	for _, e := range entries {
		if e.StartTime < slot.Start && e.EndTime > slot.Start {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[0]
}

// FreeRooms returns the rooms from candidates with no active entry overlapping slot on date.
func FreeRooms(candidates []string, date civil.Date, slot models.TimeSlot, entries []models.ScheduleEntry) []string {
	busy := make(map[string]bool)
	for _, e := range entries {
		if !e.Status.Active() || e.Date != date {
			continue
		}
		if Overlaps(slot.Start, slot.End, e.StartTime, e.EndTime) {
			busy[e.RoomID] = true
		}
	}
	free := make([]string, 0, len(candidates))
	for _, room := range candidates {
		if !busy[room] {
			free = append(free, room)
		}
	}
	sort.Strings(free)
	return free
}
