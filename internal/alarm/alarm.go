// Package alarm decides whether an appointment reminder is due.
//
// Everything here is pure: the current instant is always passed in, nothing is
// cached between calls, and inputs are never modified. The poll loop and the
// HTTP alarms endpoint call into it on every tick.
package alarm

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// DefaultTolerance is the half-width of the alert window around the alarm instant.
	DefaultTolerance = 5 * time.Minute
	// DefaultLeadMinutes is used when an appointment is created without minutos_antes.
	DefaultLeadMinutes = 30
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidTime = errors.New("invalid time of day")
	ErrInvalidZone = errors.New("invalid timezone")
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"}

var clockLayouts = []string{"15:04", "15:04:05"}

// InWindow reports whether now lies within tolerance of the alarm instant,
// which is scheduled minus leadMinutes. Both window edges are inclusive.
// A negative lead is treated as zero.
func InWindow(scheduled time.Time, leadMinutes int, now time.Time, tolerance time.Duration) bool {
	delta := AlarmInstant(scheduled, leadMinutes).Sub(now)
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

// AlarmInstant returns the moment the reminder for scheduled should go off.
func AlarmInstant(scheduled time.Time, leadMinutes int) time.Time {
	if leadMinutes < 0 {
		leadMinutes = 0
	}
	return scheduled.Add(-time.Duration(leadMinutes) * time.Minute)
}

// ScheduledInstant combines a calendar date and a time of day in loc.
//
// The date may be "2006-01-02" or a full RFC 3339 timestamp; in the latter case
// only the calendar part is used, as written, so "2024-06-15T00:00:00Z" is still
// June 15th in any zone.
func ScheduledInstant(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	d, err := parseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func parseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}
