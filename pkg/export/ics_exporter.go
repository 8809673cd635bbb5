package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// CalendarEvent is one VEVENT of a feed.
type CalendarEvent struct {
	UID         string
	Start       time.Time
	End         time.Time
	Summary     string
	Location    string
	Description string
	Cancelled   bool
	Updated     time.Time
}

// Calendar is a named list of events published as an iCalendar feed.
type Calendar struct {
	Name     string
	Timezone string
	Events   []CalendarEvent
}

// ICSExporter renders calendars in RFC 5545 format.
type ICSExporter struct {
	ProductID string
	now       func() time.Time
}

// NewICSExporter constructs an ICS exporter.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//campus-timetable-api//timetable//EN"
	}
	return &ICSExporter{ProductID: productID, now: time.Now}
}

// Render serializes the calendar.
func (e *ICSExporter) Render(data Calendar) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.ProductID)
	if data.Name != "" {
		cal.SetXWRCalName(data.Name)
	}
	if data.Timezone != "" {
		cal.SetXWRTimezone(data.Timezone)
	}

	stamp := e.now().UTC()
	for _, item := range data.Events {
		if item.UID == "" {
			return nil, fmt.Errorf("ics event without uid")
		}
		if !item.End.After(item.Start) {
			return nil, fmt.Errorf("ics event %s ends before it starts", item.UID)
		}
		event := cal.AddEvent(item.UID)
		event.SetDtStampTime(stamp)
		if !item.Updated.IsZero() {
			event.SetModifiedAt(item.Updated)
		}
		event.SetStartAt(item.Start)
		event.SetEndAt(item.End)
		event.SetSummary(item.Summary)
		if item.Location != "" {
			event.SetLocation(item.Location)
		}
		if item.Description != "" {
			event.SetDescription(item.Description)
		}
		if item.Cancelled {
			event.SetStatus(ics.ObjectStatusCancelled)
		} else {
			event.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return []byte(cal.Serialize()), nil
}
