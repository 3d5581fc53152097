package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/rrule"
)

// ErrLeadExceedsInterval rejects a recurring appointment whose reminder would
// fall before the previous occurrence has passed.
var ErrLeadExceedsInterval = errors.New("minutos_antes must be shorter than the time between occurrences")

type Appointment struct {
	AppointmentID  uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"usuario_id"`
	Service        string     `json:"servicio"`
	Description    string     `json:"descripcion"`
	Date           string     `json:"fecha"`        // YYYY-MM-DD
	Time           string     `json:"hora"`         // HH:MM in Timezone
	Timezone       string     `json:"zona_horaria"` // IANA name, empty = server default
	AlarmEnabled   bool       `json:"alarma"`
	MinutesBefore  int        `json:"minutos_antes"`
	RecurrenceRule string     `json:"regla_recurrencia"` // RFC 5545 RRULE
	NotifiedAt     *time.Time `json:"notificado_en"`     // Last alarm dispatch
	CreatedAt      time.Time  `json:"creado_en"`
	UpdatedAt      time.Time  `json:"actualizado_en"`
}

// IsRecurring returns true if this appointment has a recurrence rule
func (a *Appointment) IsRecurring() bool {
	return a.RecurrenceRule != ""
}

// AlarmEvent returns the fields the alarm evaluator works on
func (a *Appointment) AlarmEvent() alarm.Event {
	return alarm.Event{
		ID:          a.AppointmentID.String(),
		Date:        a.Date,
		Time:        a.Time,
		Timezone:    a.Timezone,
		LeadMinutes: a.MinutesBefore,
		NotifiedAt:  a.NotifiedAt,
	}
}

// AlarmEvents converts a slice for batch evaluation, keeping indexes aligned
func AlarmEvents(appointments []*Appointment) []alarm.Event {
	events := make([]alarm.Event, len(appointments))
	for i, a := range appointments {
		events[i] = a.AlarmEvent()
	}
	return events
}

// Normalize validates the schedule fields in loc and rewrites them in their
// canonical form: fecha YYYY-MM-DD, hora HH:MM, lead time not negative.
func (a *Appointment) Normalize(loc *time.Location) error {
	a.Service = strings.TrimSpace(a.Service)
	if a.Service == "" {
		return errors.New("servicio is required")
	}
	scheduled, err := alarm.ScheduledInstant(a.Date, a.Time, loc)
	if err != nil {
		return err
	}
	a.MinutesBefore = max(a.MinutesBefore, 0)
	a.RecurrenceRule = strings.TrimSpace(a.RecurrenceRule)
	if a.RecurrenceRule != "" {
		if err := rrule.Validate(a.RecurrenceRule); err != nil {
			return err
		}
		// The next occurrence's alarm must still be ahead when this one ends.
		gap, err := rrule.MinInterval(a.RecurrenceRule, scheduled)
		if err != nil {
			return err
		}
		if gap > 0 && time.Duration(a.MinutesBefore)*time.Minute >= gap {
			return ErrLeadExceedsInterval
		}
	}
	a.Date = scheduled.Format("2006-01-02")
	a.Time = scheduled.Format("15:04")
	return nil
}
