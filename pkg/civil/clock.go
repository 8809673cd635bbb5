package civil

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay bounds a Clock value.
const MinutesPerDay = 24 * 60

// Clock is a wall-clock time expressed in minutes since midnight.
type Clock int

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" (a trailing ":00" seconds part is accepted).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("parse clock %q: expected HH:MM", s)
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, fmt.Errorf("parse clock %q: seconds are not supported", s)
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("parse clock %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("parse clock %q: invalid hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("parse clock %q: invalid minute", s)
	}
	return NewClock(hour, minute), nil
}

// MustParseClock is ParseClock for literals; it panics on malformed input.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// Valid reports whether c lies within a single day.
func (c Clock) Valid() bool { return c >= 0 && c < MinutesPerDay }

// String formats c as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// MarshalText implements encoding.TextMarshaler.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Clock) UnmarshalText(data []byte) error {
	parsed, err := ParseClock(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Scan implements sql.Scanner; clocks are stored as minute offsets.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*c = Clock(v)
		return nil
	case int32:
		*c = Clock(v)
		return nil
	case int:
		*c = Clock(v)
		return nil
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	default:
		return fmt.Errorf("civil: cannot scan %T into Clock", src)
	}
}

func (c *Clock) scanString(s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		*c = Clock(n)
		return nil
	}
	return c.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer.
func (c Clock) Value() (driver.Value, error) {
	return int64(c), nil
}
