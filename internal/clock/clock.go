// Package clock converts UTC instants into a user's local wall clock and
// compares wall-clock instants at minute granularity.
package clock

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimezone is returned for an unrecognized IANA zone identifier.
var ErrInvalidTimezone = errors.New("invalid timezone")

// ErrInvalidWeekday is returned for an unrecognized weekday name.
var ErrInvalidWeekday = errors.New("invalid weekday")

// WallClock holds the calendar/time-of-day fields of an instant in some
// timezone, truncated to the minute.
type WallClock struct {
	Year    int
	Month   time.Month
	Day     int
	Hour    int
	Minute  int
	Weekday time.Weekday
}

// ToLocal converts a UTC instant into wall-clock fields in the given IANA
// timezone, using the offset in effect at that instant (DST-safe).
func ToLocal(t time.Time, tz string) (WallClock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return WallClock{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	local := t.In(loc)
	return WallClock{
		Year:    local.Year(),
		Month:   local.Month(),
		Day:     local.Day(),
		Hour:    local.Hour(),
		Minute:  local.Minute(),
		Weekday: local.Weekday(),
	}, nil
}

// SameMinute reports whether two wall clocks share hour and minute.
// Date fields are ignored; used by DAILY and WEEKLY triggers.
func SameMinute(a, b WallClock) bool {
	return a.Hour == b.Hour && a.Minute == b.Minute
}

// SameInstantMinute reports whether two wall clocks denote the same calendar
// minute: year, month, day, hour and minute all equal. Used by DATE triggers.
func SameInstantMinute(a, b WallClock) bool {
	return a.Year == b.Year &&
		a.Month == b.Month &&
		a.Day == b.Day &&
		a.Hour == b.Hour &&
		a.Minute == b.Minute
}

// ParseWeekday maps a symbolic weekday name (SUNDAY..SATURDAY) to
// time.Weekday, which numbers Sunday as 0.
func ParseWeekday(name string) (time.Weekday, error) {
	switch name {
	case "SUNDAY":
		return time.Sunday, nil
	case "MONDAY":
		return time.Monday, nil
	case "TUESDAY":
		return time.Tuesday, nil
	case "WEDNESDAY":
		return time.Wednesday, nil
	case "THURSDAY":
		return time.Thursday, nil
	case "FRIDAY":
		return time.Friday, nil
	case "SATURDAY":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
	}
}
