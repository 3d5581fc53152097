// Package notify delivers due appointment alarms to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hray3182/agenda/internal/models"
	"golang.org/x/sync/errgroup"
)

// ErrSkip is returned by a sink that has nothing to deliver for an alert,
// for example a Telegram sink for a user without a linked chat.
var ErrSkip = errors.New("sink skipped")

// Alert is one due appointment at one poll tick.
type Alert struct {
	Appointment *models.Appointment
	ScheduledAt time.Time
	AlarmAt     time.Time
}

// Message renders the reminder text shown to the user.
func (a Alert) Message() string {
	if a.Appointment.MinutesBefore <= 0 {
		return fmt.Sprintf("Tu cita con %s empieza ahora.", a.Appointment.Service)
	}
	return fmt.Sprintf("Tienes una cita con %s en %d minutos.", a.Appointment.Service, a.Appointment.MinutesBefore)
}

type Sink interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

type Dispatcher struct {
	sinks []Sink
}

func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch sends alert to every sink concurrently. It returns how many sinks
// delivered it and the joined errors of those that failed; a failing sink
// never prevents the others from running.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) (int, error) {
	var (
		g         errgroup.Group
		delivered atomic.Int32
		errs      = make([]error, len(d.sinks))
	)

	for i, sink := range d.sinks {
		i, sink := i, sink
		g.Go(func() error {
			err := sink.Send(ctx, alert)
			switch {
			case err == nil:
				delivered.Add(1)
			case errors.Is(err, ErrSkip):
			default:
				errs[i] = fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load()), errors.Join(errs...)
}
