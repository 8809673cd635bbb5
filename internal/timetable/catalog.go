// Package timetable holds the pure weekly-grid logic shared by every timetable view:
// the slot catalog, the week axis, cell mapping, consecutive-session merging and
// conflict detection. Nothing here performs I/O.
package timetable

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

// DefaultSlotSpec is the five-pair teaching day used when nothing is configured.
const DefaultSlotSpec = "08:30-10:00,10:10-11:40,11:50-13:20,14:30-16:00,16:10-17:40"

// ErrInvalidCatalog is returned when slots are malformed, unsorted or overlapping.
var ErrInvalidCatalog = errors.New("invalid time slot catalog")

// Catalog is the immutable ordered list of teaching slots.
type Catalog struct {
	slots []models.TimeSlot
	byID  map[string]int
}

// NewCatalog validates slots and returns them as a catalog sorted by start time.
func NewCatalog(slots []models.TimeSlot) (*Catalog, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no slots", ErrInvalidCatalog)
	}
	sorted := make([]models.TimeSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	byID := make(map[string]int, len(sorted))
	for i, slot := range sorted {
		if strings.TrimSpace(slot.ID) == "" {
			return nil, fmt.Errorf("%w: slot %d has no id", ErrInvalidCatalog, i+1)
		}
		if _, dup := byID[slot.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate slot id %q", ErrInvalidCatalog, slot.ID)
		}
		if !slot.Start.Valid() || !slot.End.Valid() || slot.Start >= slot.End {
			return nil, fmt.Errorf("%w: slot %q must start before it ends", ErrInvalidCatalog, slot.ID)
		}
		if i > 0 && sorted[i-1].End > slot.Start {
			return nil, fmt.Errorf("%w: slot %q overlaps slot %q", ErrInvalidCatalog, slot.ID, sorted[i-1].ID)
		}
		byID[slot.ID] = i
	}
	return &Catalog{slots: sorted, byID: byID}, nil
}

// MustCatalog builds a catalog from a spec string and panics on error.
func MustCatalog(spec string) *Catalog {
	slots, err := ParseSlotSpec(spec)
	if err != nil {
		panic(err)
	}
	catalog, err := NewCatalog(slots)
	if err != nil {
		panic(err)
	}
	return catalog
}

// ParseSlotSpec parses "HH:MM-HH:MM,..." into slots numbered from 1.
func ParseSlotSpec(spec string) ([]models.TimeSlot, error) {
	var slots []models.TimeSlot
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("%w: %q is not a HH:MM-HH:MM range", ErrInvalidCatalog, part)
		}
		start, err := civil.ParseClock(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		end, err := civil.ParseClock(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		slots = append(slots, models.TimeSlot{ID: strconv.Itoa(len(slots) + 1), Start: start, End: end})
	}
	return slots, nil
}

type slotFile struct {
	Slots []struct {
		ID    string `yaml:"id"`
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"slots"`
}

// LoadSlotFile reads a YAML catalog of the form:
//
//	slots:
//	  - {id: "1", start: "08:30", end: "10:00"}
func LoadSlotFile(path string) ([]models.TimeSlot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slot file: %w", err)
	}
	return ParseSlotYAML(raw)
}

// ParseSlotYAML decodes the YAML catalog format accepted by LoadSlotFile.
func ParseSlotYAML(raw []byte) ([]models.TimeSlot, error) {
	var file slotFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	slots := make([]models.TimeSlot, 0, len(file.Slots))
	for i, item := range file.Slots {
		start, err := civil.ParseClock(item.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: slot %d: %v", ErrInvalidCatalog, i+1, err)
		}
		end, err := civil.ParseClock(item.End)
		if err != nil {
			return nil, fmt.Errorf("%w: slot %d: %v", ErrInvalidCatalog, i+1, err)
		}
		id := item.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		slots = append(slots, models.TimeSlot{ID: id, Start: start, End: end})
	}
	return slots, nil
}

// AllSlots returns a copy of the ordered catalog.
func (c *Catalog) AllSlots() []models.TimeSlot {
	out := make([]models.TimeSlot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Len returns the number of slots per day.
func (c *Catalog) Len() int { return len(c.slots) }

// SlotByID looks a slot up by its identifier.
func (c *Catalog) SlotByID(id string) (models.TimeSlot, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return models.TimeSlot{}, false
	}
	return c.slots[idx], true
}

// SlotContaining returns the slot whose [Start, End) holds t.
func (c *Catalog) SlotContaining(t civil.Clock) (models.TimeSlot, bool) {
	for _, slot := range c.slots {
		if slot.Contains(t) {
			return slot, true
		}
	}
	return models.TimeSlot{}, false
}

// AlignedRun returns the contiguous run of slots that starts exactly at start and
// ends exactly at end. ok is false when the interval is not slot aligned.
func (c *Catalog) AlignedRun(start, end civil.Clock) ([]models.TimeSlot, bool) {
	first := -1
	for i, slot := range c.slots {
		if slot.Start == start {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, false
	}
	for i := first; i < len(c.slots); i++ {
		if c.slots[i].End == end {
			run := make([]models.TimeSlot, i-first+1)
			copy(run, c.slots[first:i+1])
			return run, true
		}
		if c.slots[i].End > end {
			break
		}
	}
	return nil, false
}

// Adjacent reports whether prevEnd closes a slot that is immediately followed by a
// slot opening at nextStart.
func (c *Catalog) Adjacent(prevEnd, nextStart civil.Clock) bool {
	for i := 0; i+1 < len(c.slots); i++ {
		if c.slots[i].End == prevEnd && c.slots[i+1].Start == nextStart {
			return true
		}
	}
	return false
}

// Contiguity treats back-to-back intervals and consecutive catalog slots as continuous.
func (c *Catalog) Contiguity() Contiguity {
	return func(prevEnd, nextStart civil.Clock) bool {
		return prevEnd == nextStart || c.Adjacent(prevEnd, nextStart)
	}
}
