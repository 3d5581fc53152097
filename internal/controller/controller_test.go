package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/auth"
	"github.com/hray3182/agenda/internal/controller"
	"github.com/hray3182/agenda/internal/middleware"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
	"github.com/hray3182/agenda/internal/routes"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (m *memUsers) Create(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.UserID = uuid.New()
	m.users[u.UserID] = u
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) SetTelegramChatID(ctx context.Context, id uuid.UUID, chatID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.TelegramChatID = chatID
	return nil
}

type memErrands struct {
	errands map[uuid.UUID]*models.Errand
}

func (m *memErrands) Create(ctx context.Context, e *models.Errand) error {
	e.ErrandID = uuid.New()
	m.errands[e.ErrandID] = e
	return nil
}

func (m *memErrands) GetByUserID(ctx context.Context, userID uuid.UUID, includeCompleted bool) ([]*models.Errand, error) {
	var out []*models.Errand
	for _, e := range m.errands {
		if e.UserID == userID && (includeCompleted || !e.Completed) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memErrands) Update(ctx context.Context, e *models.Errand) error {
	if old, ok := m.errands[e.ErrandID]; !ok || old.UserID != e.UserID {
		return repository.ErrNotFound
	}
	m.errands[e.ErrandID] = e
	return nil
}

func (m *memErrands) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if old, ok := m.errands[id]; !ok || old.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.errands, id)
	return nil
}

type memAppointments struct {
	items []*models.Appointment
}

func (m *memAppointments) Create(ctx context.Context, a *models.Appointment) error {
	a.AppointmentID = uuid.New()
	m.items = append(m.items, a)
	return nil
}

func (m *memAppointments) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range m.items {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAppointments) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Appointment, error) {
	for _, a := range m.items {
		if a.AppointmentID == id && a.UserID == userID {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAppointments) Update(ctx context.Context, a *models.Appointment) error {
	for i, old := range m.items {
		if old.AppointmentID == a.AppointmentID && old.UserID == a.UserID {
			m.items[i] = a
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memAppointments) Delete(ctx context.Context, id, userID uuid.UUID) error {
	for i, a := range m.items {
		if a.AppointmentID == id && a.UserID == userID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memAppointments) ExistsAt(ctx context.Context, userID uuid.UUID, service, date, clock string, excludeID uuid.UUID) (bool, error) {
	for _, a := range m.items {
		if a.UserID == userID && a.Service == service && a.Date == date && a.Time == clock && a.AppointmentID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAppointments) GetUserAlarmCandidates(ctx context.Context, userID uuid.UUID, sinceDate string) ([]*models.Appointment, error) {
	var out []*models.Appointment
	for _, a := range m.items {
		if a.UserID == userID && a.AlarmEnabled && a.Date >= sinceDate {
			out = append(out, a)
		}
	}
	return out, nil
}

type memNotifications struct {
	items []*models.Notification
}

func (m *memNotifications) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifications) SetStatus(ctx context.Context, id, userID uuid.UUID, status string) error {
	for _, n := range m.items {
		if n.NotificationID == id && n.UserID == userID {
			n.Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memNotifications) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	kept := m.items[:0]
	for _, n := range m.items {
		if n.UserID != userID {
			kept = append(kept, n)
		}
	}
	m.items = kept
	return nil
}

type countingNotifier struct {
	calls int
}

func (c *countingNotifier) Notify() { c.calls++ }

type testServer struct {
	router        *gin.Engine
	tokens        *auth.Tokens
	users         *memUsers
	appointments  *memAppointments
	notifications *memNotifications
	notifier      *countingNotifier
}

var testNow = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		tokens:        auth.NewTokens("test-secret", time.Hour),
		users:         &memUsers{users: make(map[uuid.UUID]*models.User)},
		appointments:  &memAppointments{},
		notifications: &memNotifications{},
		notifier:      &countingNotifier{},
	}
	ctl := controller.New(controller.Deps{
		Users:         ts.users,
		Errands:       &memErrands{errands: make(map[uuid.UUID]*models.Errand)},
		Appointments:  ts.appointments,
		Notifications: ts.notifications,
		Tokens:        ts.tokens,
		Evaluator:     alarm.New(5*time.Minute, time.UTC),
		Scheduler:     ts.notifier,
		Now:           func() time.Time { return testNow },
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts.router = routes.Router(ctl, ts.tokens, middleware.NewRateLimiter(100), logger)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// register creates a user and returns its token and id.
func (ts *testServer) register(t *testing.T, email string) (string, uuid.UUID) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/usuarios", "", map[string]string{
		"nombre": "Ana", "email": email, "password": "contraseña-segura",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token   string      `json:"token"`
		Usuario models.User `json:"usuario"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, resp.Usuario.UserID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)
	token, id := ts.register(t, "ana@example.com")
	assert.NotEmpty(t, token)

	w := ts.do(t, http.MethodPost, "/usuarios", "", map[string]string{
		"email": "ana@example.com", "password": "otra-contraseña",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/login", "", map[string]string{
		"email": "ANA@example.com", "password": "contraseña-segura",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = ts.do(t, http.MethodPost, "/login", "", map[string]string{
		"email": "ana@example.com", "password": "incorrecta",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/usuarios/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[models.User](t, w).UserID)
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/usuarios", "", map[string]string{
		"email": "no-es-un-email", "password": "contraseña-segura",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/usuarios", "", map[string]string{
		"email": "corta@example.com", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/citas", "/recados", "/alarmas", "/notificaciones", "/usuarios/me"} {
		w := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestLinkTelegram(t *testing.T) {
	ts := newTestServer(t)
	token, id := ts.register(t, "ana@example.com")

	w := ts.do(t, http.MethodPut, "/usuarios/me/telegram", token, map[string]int64{"chat_id": 4242})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ts.users.users[id].TelegramChatID)
	assert.EqualValues(t, 4242, *ts.users.users[id].TelegramChatID)

	w = ts.do(t, http.MethodPut, "/usuarios/me/telegram", token, map[string]any{"chat_id": nil})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, ts.users.users[id].TelegramChatID)
}

func TestCreateAppointment(t *testing.T) {
	ts := newTestServer(t)
	token, id := ts.register(t, "ana@example.com")

	w := ts.do(t, http.MethodPost, "/citas", token, map[string]any{
		"servicio": "Dentista",
		"fecha":    "2024-06-15T00:00:00.000Z",
		"hora":     "10:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	a := decode[models.Appointment](t, w)
	assert.Equal(t, id, a.UserID)
	assert.Equal(t, "2024-06-15", a.Date)
	assert.Equal(t, "10:00", a.Time)
	assert.True(t, a.AlarmEnabled)
	assert.Equal(t, alarm.DefaultLeadMinutes, a.MinutesBefore)
	assert.Equal(t, 1, ts.notifier.calls)

	// Same service, date and time.
	w = ts.do(t, http.MethodPost, "/citas", token, map[string]any{
		"servicio": "Dentista", "fecha": "2024-06-15", "hora": "10:00",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, ts.notifier.calls)
}

func TestCreateAppointment_NormalizesLead(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "ana@example.com")

	w := ts.do(t, http.MethodPost, "/citas", token, map[string]any{
		"servicio": "Analítica", "fecha": "2024-06-20", "hora": "08:15",
		"minutos_antes": -10, "alarma": false,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[models.Appointment](t, w)
	assert.Zero(t, a.MinutesBefore)
	assert.False(t, a.AlarmEnabled)
}

func TestCreateAppointment_Rejects(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "ana@example.com")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing service", map[string]any{"fecha": "2024-06-15", "hora": "10:00"}},
		{"bad date", map[string]any{"servicio": "X", "fecha": "15/06/2024", "hora": "10:00"}},
		{"bad time", map[string]any{"servicio": "X", "fecha": "2024-06-15", "hora": "25:00"}},
		{"bad zone", map[string]any{"servicio": "X", "fecha": "2024-06-15", "hora": "10:00", "zona_horaria": "Mars/Olympus"}},
		{"count rule", map[string]any{"servicio": "X", "fecha": "2024-06-15", "hora": "10:00", "regla_recurrencia": "FREQ=DAILY;COUNT=5"}},
		{"bad rule", map[string]any{"servicio": "X", "fecha": "2024-06-15", "hora": "10:00", "regla_recurrencia": "FREQ=SOMETIMES"}},
		{"lead past previous occurrence", map[string]any{"servicio": "X", "fecha": "2024-06-15", "hora": "10:00", "minutos_antes": 90, "regla_recurrencia": "FREQ=HOURLY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/citas", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, ts.appointments.items)
	assert.Zero(t, ts.notifier.calls)
}

func TestUpdateAndDeleteAppointment(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "ana@example.com")
	other, _ := ts.register(t, "luis@example.com")

	w := ts.do(t, http.MethodPost, "/citas", token, map[string]any{
		"servicio": "Dentista", "fecha": "2024-06-15", "hora": "10:00",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	a := decode[models.Appointment](t, w)
	path := "/citas/" + a.AppointmentID.String()

	// Saving the same slot again on the same appointment is not a duplicate.
	w = ts.do(t, http.MethodPut, path, token, map[string]any{
		"servicio": "Dentista", "fecha": "2024-06-15", "hora": "10:00", "minutos_antes": 60,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 60, decode[models.Appointment](t, w).MinutesBefore)

	w = ts.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10:00", decode[models.Appointment](t, w).Time)
	w = ts.do(t, http.MethodGet, path, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPut, path, other, map[string]any{
		"servicio": "Dentista", "fecha": "2024-06-15", "hora": "10:00",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/citas/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAppointment_KeepsNotifiedAt(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "ana@example.com")

	w := ts.do(t, http.MethodPost, "/citas", token, map[string]any{
		"servicio": "Dentista", "fecha": "2024-06-15", "hora": "10:00", "minutos_antes": 30,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	path := "/citas/" + decode[models.Appointment](t, w).AppointmentID.String()

	// The poll loop sent the alarm at 09:30.
	notified := testNow
	ts.appointments.items[0].NotifiedAt = &notified
	evaluator := alarm.New(5*time.Minute, time.UTC)

	w = ts.do(t, http.MethodPut, path, token, map[string]any{
		"servicio": "Dentista", "descripcion": "Traer radiografía", "fecha": "2024-06-15", "hora": "10:00", "minutos_antes": 30,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[models.Appointment](t, w)
	require.NotNil(t, saved.NotifiedAt)
	assert.True(t, notified.Equal(*saved.NotifiedAt))

	due, err := evaluator.Due(models.AlarmEvents(ts.appointments.items), testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due, "an edit inside the open window must not re-arm the alarm")

	// Moving the appointment later opens a new window.
	w = ts.do(t, http.MethodPut, path, token, map[string]any{
		"servicio": "Dentista", "fecha": "2024-06-15", "hora": "12:00", "minutos_antes": 30,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	due, err = evaluator.Due(models.AlarmEvents(ts.appointments.items), time.Date(2024, 6, 15, 11, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestListAlarms(t *testing.T) {
	ts := newTestServer(t)
	token, id := ts.register(t, "ana@example.com")
	_, otherID := ts.register(t, "luis@example.com")

	notified := testNow.Add(-time.Minute)
	ts.appointments.items = []*models.Appointment{
		// window open now
		{AppointmentID: uuid.New(), UserID: id, Service: "Dentista", Date: "2024-06-15", Time: "10:00", AlarmEnabled: true, MinutesBefore: 30},
		// window open, already notified
		{AppointmentID: uuid.New(), UserID: id, Service: "Médico", Date: "2024-06-15", Time: "09:32", AlarmEnabled: true, NotifiedAt: &notified},
		// window not open yet
		{AppointmentID: uuid.New(), UserID: id, Service: "Fisio", Date: "2024-06-15", Time: "12:00", AlarmEnabled: true, MinutesBefore: 30},
		// malformed
		{AppointmentID: uuid.New(), UserID: id, Service: "Roto", Date: "2024-06-15", Time: "nope", AlarmEnabled: true},
		// another user
		{AppointmentID: uuid.New(), UserID: otherID, Service: "Ajeno", Date: "2024-06-15", Time: "10:00", AlarmEnabled: true, MinutesBefore: 30},
	}

	w := ts.do(t, http.MethodGet, "/alarmas", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var alarms []struct {
		Service  string    `json:"servicio"`
		AlarmAt  time.Time `json:"alarma_en"`
		Notified bool      `json:"notificado"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alarms))
	require.Len(t, alarms, 2)
	assert.Equal(t, "Dentista", alarms[0].Service)
	assert.True(t, testNow.Equal(alarms[0].AlarmAt))
	assert.False(t, alarms[0].Notified)
	assert.Equal(t, "Médico", alarms[1].Service)
	assert.True(t, alarms[1].Notified)

	// Polling again does not consume anything.
	w2 := ts.do(t, http.MethodGet, "/alarmas", token, nil)
	assert.JSONEq(t, w.Body.String(), w2.Body.String())
}

func TestErrands(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "ana@example.com")

	w := ts.do(t, http.MethodPost, "/recados", token, map[string]any{
		"titulo": "Comprar pan", "fecha": "2024-06-15", "hora": "18:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	e := decode[models.Errand](t, w)

	w = ts.do(t, http.MethodPost, "/recados", token, map[string]any{"titulo": "X", "fecha": "mañana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/recados/"+e.ErrandID.String(), token, map[string]any{
		"titulo": "Comprar pan", "fecha": "2024-06-15", "completado": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/recados", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.Errand](t, w))

	w = ts.do(t, http.MethodGet, "/recados?all=true", token, nil)
	assert.Len(t, decode[[]models.Errand](t, w), 1)

	w = ts.do(t, http.MethodDelete, "/recados/"+e.ErrandID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNotifications(t *testing.T) {
	ts := newTestServer(t)
	token, id := ts.register(t, "ana@example.com")
	n := &models.Notification{
		NotificationID: uuid.New(),
		UserID:         id,
		Message:        "Tienes una cita con Dentista en 30 minutos.",
		Type:           models.NotificationPush,
		Status:         models.StatusPending,
	}
	ts.notifications.items = []*models.Notification{n}

	w := ts.do(t, http.MethodGet, "/notificaciones", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Notification](t, w), 1)

	w = ts.do(t, http.MethodPatch, "/notificaciones/"+n.NotificationID.String()+"/read", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusRead, n.Status)

	w = ts.do(t, http.MethodPatch, "/notificaciones/"+uuid.NewString()+"/read", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/notificaciones", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, ts.notifications.items)
}
