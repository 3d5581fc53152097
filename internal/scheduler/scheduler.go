package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/notify"
	"github.com/hray3182/agenda/internal/rrule"
)

const dateLayout = "2006-01-02"

type AppointmentStore interface {
	GetAlarmCandidates(ctx context.Context, sinceDate string) ([]*models.Appointment, error)
	GetRecurringDue(ctx context.Context, untilDate string) ([]*models.Appointment, error)
	SetNotifiedAt(ctx context.Context, id uuid.UUID, notifiedAt *time.Time) error
	MoveOccurrence(ctx context.Context, id uuid.UUID, date, clock string) error
	ClearRecurrence(ctx context.Context, id uuid.UUID) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, alert notify.Alert) (int, error)
}

// Claimer arbitrates between replicas; see cache.Claimer.
type Claimer interface {
	Claim(ctx context.Context, appointmentID string, alarmAt time.Time) (bool, error)
	Release(ctx context.Context, appointmentID string, alarmAt time.Time) error
}

type Options struct {
	Interval   time.Duration
	StartDelay time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

type Scheduler struct {
	store      AppointmentStore
	dispatcher Dispatcher
	claimer    Claimer
	evaluator  alarm.Evaluator
	interval   time.Duration
	startDelay time.Duration
	now        func() time.Time
	logger     *slog.Logger
	notifyCh   chan struct{}
}

// New creates the alarm poll loop. claimer may be nil when a single replica runs.
func New(store AppointmentStore, dispatcher Dispatcher, claimer Claimer, evaluator alarm.Evaluator, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.StartDelay < 0 {
		opts.StartDelay = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		claimer:    claimer,
		evaluator:  evaluator,
		interval:   opts.Interval,
		startDelay: opts.StartDelay,
		now:        opts.Now,
		logger:     opts.Logger,
		notifyCh:   make(chan struct{}, 1),
	}
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

// Start runs the loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Wait a bit for migrations to complete before first check
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.startDelay):
	}

	s.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Check(ctx)
		case <-s.notifyCh:
			s.logger.Debug("Scheduler triggered by notification")
			s.Check(ctx)
		}
	}
}

// Check runs one tick: dispatch due alarms, then roll recurring appointments forward.
func (s *Scheduler) Check(ctx context.Context) {
	now := s.now()
	s.checkAlarms(ctx, now)
	s.advanceRecurring(ctx, now)
}

func (s *Scheduler) checkAlarms(ctx context.Context, now time.Time) {
	// Two days back covers appointments stored in zones ahead of ours.
	since := now.In(s.evaluator.Location()).AddDate(0, 0, -2).Format(dateLayout)
	appointments, err := s.store.GetAlarmCandidates(ctx, since)
	if err != nil {
		s.logger.Error("Failed to get alarm candidates", "error", err)
		return
	}

	matches, err := s.evaluator.Due(models.AlarmEvents(appointments), now)
	if err != nil {
		s.logger.Warn("Skipped malformed appointments", "error", err)
	}

	for _, m := range matches {
		s.fire(ctx, appointments[m.Index], m.Result, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, appt *models.Appointment, res alarm.Result, now time.Time) {
	id := appt.AppointmentID.String()
	log := s.logger.With("appointment_id", id, "user_id", appt.UserID.String())

	if s.claimer != nil {
		ok, err := s.claimer.Claim(ctx, id, res.AlarmAt)
		switch {
		case err != nil:
			// Redis unavailable: notificado_en still guards this replica.
			log.Warn("Failed to claim alarm, dispatching anyway", "error", err)
		case !ok:
			log.Debug("Alarm claimed by another replica")
			return
		}
	}

	delivered, err := s.dispatcher.Dispatch(ctx, notify.Alert{
		Appointment: appt,
		ScheduledAt: res.ScheduledAt,
		AlarmAt:     res.AlarmAt,
	})
	if err != nil {
		log.Error("Failed to deliver alarm to some sinks", "error", err, "delivered", delivered)
	}
	if delivered == 0 {
		if s.claimer != nil {
			if err := s.claimer.Release(ctx, id, res.AlarmAt); err != nil {
				log.Warn("Failed to release alarm claim", "error", err)
			}
		}
		return
	}

	if err := s.store.SetNotifiedAt(ctx, appt.AppointmentID, &now); err != nil {
		log.Error("Failed to record notification time", "error", err)
		return
	}
	appt.NotifiedAt = &now
	log.Info("Sent appointment alarm", "alarm_at", res.AlarmAt, "delivered", delivered)
}

func (s *Scheduler) advanceRecurring(ctx context.Context, now time.Time) {
	until := now.In(s.evaluator.Location()).AddDate(0, 0, 1).Format(dateLayout)
	appointments, err := s.store.GetRecurringDue(ctx, until)
	if err != nil {
		s.logger.Error("Failed to get recurring appointments", "error", err)
		return
	}

	for _, appt := range appointments {
		log := s.logger.With("appointment_id", appt.AppointmentID.String())

		loc, err := s.evaluator.Zone(appt.Timezone)
		if err != nil {
			log.Warn("Skipped recurring appointment", "error", err)
			continue
		}
		scheduled, err := alarm.ScheduledInstant(appt.Date, appt.Time, loc)
		if err != nil {
			log.Warn("Skipped recurring appointment", "error", err)
			continue
		}
		// Keep the occurrence until its whole alert window has closed.
		if !now.After(scheduled.Add(s.evaluator.Tolerance())) {
			continue
		}

		next, err := rrule.NextOccurrence(appt.RecurrenceRule, scheduled, now)
		if err != nil {
			log.Warn("Failed to calculate next occurrence", "error", err)
			continue
		}
		if next == nil {
			if err := s.store.ClearRecurrence(ctx, appt.AppointmentID); err != nil {
				log.Error("Failed to end recurrence", "error", err)
			}
			log.Info("Recurrence finished")
			continue
		}

		local := next.In(loc)
		if err := s.store.MoveOccurrence(ctx, appt.AppointmentID, local.Format(dateLayout), local.Format("15:04")); err != nil {
			log.Error("Failed to move to next occurrence", "error", err)
			continue
		}
		log.Info("Scheduled next occurrence", "next", local.Format("2006-01-02 15:04"))
	}
}
