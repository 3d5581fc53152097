package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/logging"
	"github.com/hray3182/agenda/internal/middleware"
	"github.com/hray3182/agenda/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetTelegramChatID(ctx context.Context, userID uuid.UUID, chatID *int64) error
}

type ErrandStore interface {
	Create(ctx context.Context, e *models.Errand) error
	GetByUserID(ctx context.Context, userID uuid.UUID, includeCompleted bool) ([]*models.Errand, error)
	Update(ctx context.Context, e *models.Errand) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type AppointmentStore interface {
	Create(ctx context.Context, a *models.Appointment) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Appointment, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Appointment, error)
	Update(ctx context.Context, a *models.Appointment) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	ExistsAt(ctx context.Context, userID uuid.UUID, service, date, clock string, excludeID uuid.UUID) (bool, error)
	GetUserAlarmCandidates(ctx context.Context, userID uuid.UUID, sinceDate string) ([]*models.Appointment, error)
}

type NotificationStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error)
	SetStatus(ctx context.Context, id, userID uuid.UUID, status string) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
}

// Notifier wakes the alarm poll loop after a write.
type Notifier interface {
	Notify()
}

type Deps struct {
	Users         UserStore
	Errands       ErrandStore
	Appointments  AppointmentStore
	Notifications NotificationStore
	Tokens        TokenIssuer
	Evaluator     alarm.Evaluator
	Scheduler     Notifier
	Now           func() time.Time
}

type Controller struct {
	users         UserStore
	errands       ErrandStore
	appointments  AppointmentStore
	notifications NotificationStore
	tokens        TokenIssuer
	evaluator     alarm.Evaluator
	scheduler     Notifier
	now           func() time.Time
}

func New(d Deps) *Controller {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Controller{
		users:         d.Users,
		errands:       d.Errands,
		appointments:  d.Appointments,
		notifications: d.Notifications,
		tokens:        d.Tokens,
		evaluator:     d.Evaluator,
		scheduler:     d.Scheduler,
		now:           d.Now,
	}
}

// Health returns 200 if the process is alive.
func (ctl *Controller) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// currentUser aborts with 401 when the request carries no authenticated user.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func internalError(c *gin.Context, msg string, err error) {
	if isContextErr(err) {
		return
	}
	logging.FromContext(c.Request.Context()).Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
