package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/notify"
)

type move struct {
	date, clock string
}

type fakeStore struct {
	appointments []*models.Appointment
	notified     map[uuid.UUID]time.Time
	moved        map[uuid.UUID]move
	cleared      []uuid.UUID
}

func newFakeStore(appts ...*models.Appointment) *fakeStore {
	return &fakeStore{
		appointments: appts,
		notified:     make(map[uuid.UUID]time.Time),
		moved:        make(map[uuid.UUID]move),
	}
}

func (f *fakeStore) GetAlarmCandidates(ctx context.Context, sinceDate string) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range f.appointments {
		if a.AlarmEnabled && a.Date >= sinceDate {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRecurringDue(ctx context.Context, untilDate string) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range f.appointments {
		if a.IsRecurring() && a.Date <= untilDate {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) SetNotifiedAt(ctx context.Context, id uuid.UUID, notifiedAt *time.Time) error {
	f.notified[id] = *notifiedAt
	return nil
}

func (f *fakeStore) MoveOccurrence(ctx context.Context, id uuid.UUID, date, clock string) error {
	f.moved[id] = move{date, clock}
	return nil
}

func (f *fakeStore) ClearRecurrence(ctx context.Context, id uuid.UUID) error {
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeDispatcher struct {
	delivered int
	err       error
	alerts    []notify.Alert
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, alert notify.Alert) (int, error) {
	f.alerts = append(f.alerts, alert)
	return f.delivered, f.err
}

type fakeClaimer struct {
	held     map[string]bool
	err      error
	released []string
}

func (f *fakeClaimer) Claim(ctx context.Context, id string, alarmAt time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held[id] {
		return false, nil
	}
	f.held[id] = true
	return true, nil
}

func (f *fakeClaimer) Release(ctx context.Context, id string, alarmAt time.Time) error {
	delete(f.held, id)
	f.released = append(f.released, id)
	return nil
}

var testNow = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(store AppointmentStore, d Dispatcher, c Claimer) *Scheduler {
	return New(store, d, c, alarm.New(5*time.Minute, time.UTC), Options{
		Now:    func() time.Time { return testNow },
		Logger: testLogger(),
	})
}

func appointment(date, clock string, lead int) *models.Appointment {
	return &models.Appointment{
		AppointmentID: uuid.New(),
		UserID:        uuid.New(),
		Service:       "Dentista",
		Date:          date,
		Time:          clock,
		AlarmEnabled:  true,
		MinutesBefore: lead,
	}
}

func TestCheck_FiresOnceAndRecordsNotification(t *testing.T) {
	due := appointment("2024-06-15", "10:00", 30)
	later := appointment("2024-06-15", "12:00", 30)
	store := newFakeStore(due, later)
	d := &fakeDispatcher{delivered: 1}
	s := newTestScheduler(store, d, nil)

	s.Check(context.Background())

	require.Len(t, d.alerts, 1)
	assert.Equal(t, due.AppointmentID, d.alerts[0].Appointment.AppointmentID)
	assert.Equal(t, time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC), d.alerts[0].ScheduledAt)
	assert.Equal(t, testNow, d.alerts[0].AlarmAt)
	assert.Equal(t, testNow, store.notified[due.AppointmentID])
	assert.NotContains(t, store.notified, later.AppointmentID)

	s.Check(context.Background())
	assert.Len(t, d.alerts, 1, "second tick in the same window must not resend")
}

func TestCheck_EditInsideWindowDoesNotResend(t *testing.T) {
	due := appointment("2024-06-15", "10:00", 30)
	store := newFakeStore(due)
	d := &fakeDispatcher{delivered: 1}
	now := testNow
	s := New(store, d, nil, alarm.New(5*time.Minute, time.UTC), Options{
		Now:    func() time.Time { return now },
		Logger: testLogger(),
	})

	s.Check(context.Background())
	require.Len(t, d.alerts, 1)

	// A description edit at 09:31 keeps notificado_en.
	edited := *due
	edited.Description = "Traer radiografía"
	store.appointments[0] = &edited
	now = testNow.Add(time.Minute)
	s.Check(context.Background())
	assert.Len(t, d.alerts, 1)

	// Rescheduled to 11:00, the alarm fires again at 10:30.
	moved := edited
	moved.Time = "11:00"
	store.appointments[0] = &moved
	now = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	s.Check(context.Background())
	assert.Len(t, d.alerts, 2)
}

func TestCheck_ZeroEvaluatorUsesDefaults(t *testing.T) {
	due := appointment("2024-06-15", "10:00", 30)
	due.Timezone = "UTC"

	// Window closes at 09:32 with the default tolerance, so it stays put.
	recurring := appointment("2024-06-15", "09:27", 0)
	recurring.Timezone = "UTC"
	recurring.AlarmEnabled = false
	recurring.RecurrenceRule = "FREQ=DAILY"

	store := newFakeStore(due, recurring)
	d := &fakeDispatcher{delivered: 1}
	s := New(store, d, nil, alarm.Evaluator{}, Options{
		Now:    func() time.Time { return testNow },
		Logger: testLogger(),
	})

	require.NotPanics(t, func() { s.Check(context.Background()) })
	assert.Len(t, d.alerts, 1)
	assert.NotContains(t, store.moved, recurring.AppointmentID)
}

func TestCheck_SkipsMalformedAndContinues(t *testing.T) {
	broken := appointment("2024-06-15", "25:99", 30)
	due := appointment("2024-06-15", "10:00", 30)
	store := newFakeStore(broken, due)
	d := &fakeDispatcher{delivered: 1}

	newTestScheduler(store, d, nil).Check(context.Background())

	require.Len(t, d.alerts, 1)
	assert.Equal(t, due.AppointmentID, d.alerts[0].Appointment.AppointmentID)
}

func TestCheck_ClaimHeldElsewhere(t *testing.T) {
	due := appointment("2024-06-15", "10:00", 30)
	store := newFakeStore(due)
	d := &fakeDispatcher{delivered: 1}
	c := &fakeClaimer{held: map[string]bool{due.AppointmentID.String(): true}}

	newTestScheduler(store, d, c).Check(context.Background())

	assert.Empty(t, d.alerts)
	assert.Empty(t, store.notified)
}

func TestCheck_ClaimErrorFailsOpen(t *testing.T) {
	due := appointment("2024-06-15", "10:00", 30)
	store := newFakeStore(due)
	d := &fakeDispatcher{delivered: 1}
	c := &fakeClaimer{err: errors.New("redis down")}

	newTestScheduler(store, d, c).Check(context.Background())

	assert.Len(t, d.alerts, 1)
	assert.Contains(t, store.notified, due.AppointmentID)
}

func TestCheck_NothingDeliveredReleasesClaim(t *testing.T) {
	due := appointment("2024-06-15", "10:00", 30)
	store := newFakeStore(due)
	d := &fakeDispatcher{delivered: 0, err: errors.New("store: connection reset")}
	c := &fakeClaimer{held: map[string]bool{}}

	s := newTestScheduler(store, d, c)
	s.Check(context.Background())

	assert.Empty(t, store.notified)
	assert.Equal(t, []string{due.AppointmentID.String()}, c.released)

	// The next tick retries.
	d.delivered, d.err = 1, nil
	s.Check(context.Background())
	assert.Len(t, d.alerts, 2)
	assert.Contains(t, store.notified, due.AppointmentID)
}

func TestCheck_AdvancesRecurring(t *testing.T) {
	past := appointment("2024-06-14", "08:00", 30)
	past.RecurrenceRule = "FREQ=DAILY"

	upcoming := appointment("2024-06-15", "10:00", 30)
	upcoming.RecurrenceRule = "FREQ=DAILY"

	finished := appointment("2024-06-14", "08:00", 30)
	finished.RecurrenceRule = "FREQ=DAILY;UNTIL=20240614T090000Z"

	store := newFakeStore(past, upcoming, finished)
	newTestScheduler(store, &fakeDispatcher{delivered: 1}, nil).Check(context.Background())

	assert.Equal(t, move{"2024-06-16", "08:00"}, store.moved[past.AppointmentID])
	assert.NotContains(t, store.moved, upcoming.AppointmentID)
	assert.Equal(t, []uuid.UUID{finished.AppointmentID}, store.cleared)
}

func TestCheck_RecurringKeepsLocalClockAcrossDST(t *testing.T) {
	// Madrid switches to summer time on 2024-03-31.
	appt := appointment("2024-03-30", "09:00", 30)
	appt.Timezone = "Europe/Madrid"
	appt.RecurrenceRule = "FREQ=DAILY"
	store := newFakeStore(appt)

	s := New(store, &fakeDispatcher{}, nil, alarm.New(5*time.Minute, time.UTC), Options{
		Now:    func() time.Time { return time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC) },
		Logger: testLogger(),
	})
	s.Check(context.Background())

	assert.Equal(t, move{"2024-03-31", "09:00"}, store.moved[appt.AppointmentID])
}

func TestNotify_NonBlocking(t *testing.T) {
	s := newTestScheduler(newFakeStore(), &fakeDispatcher{}, nil)
	s.Notify()
	s.Notify()
	assert.Len(t, s.notifyCh, 1)
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := newTestScheduler(newFakeStore(), &fakeDispatcher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type fakePurger struct {
	cutoff time.Time
	n      int64
}

func (f *fakePurger) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, nil
}

func TestCleaner_Run(t *testing.T) {
	p := &fakePurger{n: 3}
	c := NewCleaner(p, 30, testLogger())
	c.now = func() time.Time { return testNow }

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, testNow.AddDate(0, 0, -30), p.cutoff)
}

func TestCleaner_InvalidSpec(t *testing.T) {
	c := NewCleaner(&fakePurger{}, 0, testLogger())
	assert.Error(t, c.Start("not a cron"))
	assert.Equal(t, 30*24*time.Hour, c.retention)
}
