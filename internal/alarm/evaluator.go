package alarm

import (
	"errors"
	"fmt"
	"time"
)

// Event is the part of an appointment the evaluator looks at.
type Event struct {
	ID          string
	Date        string // YYYY-MM-DD
	Time        string // HH:MM
	Timezone    string // IANA name, empty means the evaluator's Location
	LeadMinutes int
	NotifiedAt  *time.Time // last dispatch, nil if never notified
}

// Result describes where now falls relative to one event's alert window.
type Result struct {
	ScheduledAt     time.Time
	AlarmAt         time.Time
	Delta           time.Duration // AlarmAt - now
	InWindow        bool
	AlreadyNotified bool
}

// ShouldFire is true when the window is open and nothing was sent for it yet.
func (r Result) ShouldFire() bool {
	return r.InWindow && !r.AlreadyNotified
}

// Match pairs an input event with its evaluation. Index points into the slice
// handed to Due or Active.
type Match struct {
	Index  int
	Event  Event
	Result Result
}

// Evaluator holds the window settings. The zero value uses DefaultTolerance
// and time.Local.
type Evaluator struct {
	tolerance time.Duration
	location  *time.Location
}

// New returns an evaluator; a non-positive tolerance falls back to DefaultTolerance.
func New(tolerance time.Duration, loc *time.Location) Evaluator {
	return Evaluator{tolerance: tolerance, location: loc}
}

// Tolerance is the half-width of the alert window.
func (e Evaluator) Tolerance() time.Duration {
	if e.tolerance <= 0 {
		return DefaultTolerance
	}
	return e.tolerance
}

// Location is the zone for events without their own timezone.
func (e Evaluator) Location() *time.Location {
	if e.location == nil {
		return time.Local
	}
	return e.location
}

// Zone resolves an event timezone name; empty means the evaluator's Location.
func (e Evaluator) Zone(name string) (*time.Location, error) {
	if name == "" {
		return e.Location(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZone, name)
	}
	return loc, nil
}

// Evaluate computes the alarm window of ev relative to now.
func (e Evaluator) Evaluate(ev Event, now time.Time) (Result, error) {
	loc, err := e.Zone(ev.Timezone)
	if err != nil {
		return Result{}, err
	}
	scheduled, err := ScheduledInstant(ev.Date, ev.Time, loc)
	if err != nil {
		return Result{}, err
	}

	tol := e.Tolerance()
	alarmAt := AlarmInstant(scheduled, ev.LeadMinutes)
	res := Result{
		ScheduledAt: scheduled,
		AlarmAt:     alarmAt,
		Delta:       alarmAt.Sub(now),
		InWindow:    InWindow(scheduled, ev.LeadMinutes, now, tol),
	}
	// A dispatch recorded at or after the window opened belongs to this window.
	if ev.NotifiedAt != nil && !ev.NotifiedAt.Before(alarmAt.Add(-tol)) {
		res.AlreadyNotified = true
	}
	return res, nil
}

// ShouldFire fails closed: any malformed field yields false.
func (e Evaluator) ShouldFire(ev Event, now time.Time) bool {
	res, err := e.Evaluate(ev, now)
	if err != nil {
		return false
	}
	return res.ShouldFire()
}

// Due returns the events whose reminder should be sent now. Malformed events
// are skipped; their errors are joined into the returned error so the caller
// can log them without losing the rest of the batch.
func (e Evaluator) Due(events []Event, now time.Time) ([]Match, error) {
	return e.filter(events, now, Result.ShouldFire)
}

// Active returns every event currently inside its alert window, notified or not.
func (e Evaluator) Active(events []Event, now time.Time) ([]Match, error) {
	return e.filter(events, now, func(r Result) bool { return r.InWindow })
}

func (e Evaluator) filter(events []Event, now time.Time, keep func(Result) bool) ([]Match, error) {
	var (
		matches []Match
		errs    []error
	)
	for i, ev := range events {
		res, err := e.Evaluate(ev, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
			continue
		}
		if keep(res) {
			matches = append(matches, Match{Index: i, Event: ev, Result: res})
		}
	}
	return matches, errors.Join(errs...)
}
