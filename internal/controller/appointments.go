package controller

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/logging"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
)

type appointmentRequest struct {
	Service        string `json:"servicio" binding:"required"`
	Description    string `json:"descripcion"`
	Date           string `json:"fecha" binding:"required"`
	Time           string `json:"hora" binding:"required"`
	Timezone       string `json:"zona_horaria"`
	AlarmEnabled   *bool  `json:"alarma"`
	MinutesBefore  *int   `json:"minutos_antes"`
	RecurrenceRule string `json:"regla_recurrencia"`
}

// appointment validates the request and normalizes it into a model. A missing
// lead time gets the default and a missing alarma flag means enabled.
func (ctl *Controller) appointment(body appointmentRequest, id, userID uuid.UUID) (*models.Appointment, error) {
	a := &models.Appointment{
		AppointmentID:  id,
		UserID:         userID,
		Service:        body.Service,
		Description:    body.Description,
		Date:           body.Date,
		Time:           body.Time,
		Timezone:       strings.TrimSpace(body.Timezone),
		AlarmEnabled:   true,
		MinutesBefore:  alarm.DefaultLeadMinutes,
		RecurrenceRule: body.RecurrenceRule,
	}
	if body.AlarmEnabled != nil {
		a.AlarmEnabled = *body.AlarmEnabled
	}
	if body.MinutesBefore != nil {
		a.MinutesBefore = *body.MinutesBefore
	}

	loc, err := ctl.evaluator.Zone(a.Timezone)
	if err != nil {
		return nil, err
	}
	if err := a.Normalize(loc); err != nil {
		return nil, err
	}
	return a, nil
}

func (ctl *Controller) ListAppointments(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	appointments, err := ctl.appointments.GetByUserID(c.Request.Context(), uid)
	if err != nil {
		internalError(c, "Failed to get appointments", err)
		return
	}
	if appointments == nil {
		appointments = []*models.Appointment{}
	}
	c.JSON(http.StatusOK, appointments)
}

func (ctl *Controller) GetAppointment(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := ctl.appointments.GetByID(c.Request.Context(), id, uid)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to get appointment", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (ctl *Controller) CreateAppointment(c *gin.Context) {
	ctl.saveAppointment(c, uuid.Nil)
}

func (ctl *Controller) UpdateAppointment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctl.saveAppointment(c, id)
}

// saveAppointment creates when id is uuid.Nil and replaces otherwise.
func (ctl *Controller) saveAppointment(c *gin.Context, id uuid.UUID) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var body appointmentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	a, err := ctl.appointment(body, id, uid)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if id != uuid.Nil {
		current, err := ctl.appointments.GetByID(ctx, id, uid)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
			return
		}
		if err != nil {
			internalError(c, "Failed to get appointment", err)
			return
		}
		// Fired tracking survives edits; moving the alarm later re-arms it.
		a.NotifiedAt = current.NotifiedAt
		a.CreatedAt = current.CreatedAt
	}

	exists, err := ctl.appointments.ExistsAt(ctx, uid, a.Service, a.Date, a.Time, id)
	if err != nil {
		internalError(c, "Failed to check appointment", err)
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "An appointment for this service already exists at that date and time"})
		return
	}

	status := http.StatusCreated
	if id == uuid.Nil {
		err = ctl.appointments.Create(ctx, a)
	} else {
		status = http.StatusOK
		err = ctl.appointments.Update(ctx, a)
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to save appointment", err)
		return
	}

	if ctl.scheduler != nil {
		ctl.scheduler.Notify()
	}
	logging.FromContext(ctx).Info("Saved appointment", "appointment_id", a.AppointmentID.String())
	c.JSON(status, a)
}

func (ctl *Controller) DeleteAppointment(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := ctl.appointments.Delete(c.Request.Context(), id, uid)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to delete appointment", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type alarmResponse struct {
	*models.Appointment
	AlarmAt  time.Time `json:"alarma_en"`
	Notified bool      `json:"notificado"`
}

// ListAlarms (auth): the caller's appointments whose alert window is open now.
// Repeated polling returns the same set for as long as the window lasts.
func (ctl *Controller) ListAlarms(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	now := ctl.now()

	since := now.In(ctl.evaluator.Location()).AddDate(0, 0, -2).Format("2006-01-02")
	appointments, err := ctl.appointments.GetUserAlarmCandidates(ctx, uid, since)
	if err != nil {
		internalError(c, "Failed to get alarms", err)
		return
	}

	matches, err := ctl.evaluator.Active(models.AlarmEvents(appointments), now)
	if err != nil {
		logging.FromContext(ctx).Warn("Skipped malformed appointments", "error", err)
	}

	alarms := make([]alarmResponse, 0, len(matches))
	for _, m := range matches {
		alarms = append(alarms, alarmResponse{
			Appointment: appointments[m.Index],
			AlarmAt:     m.Result.AlarmAt,
			Notified:    m.Result.AlreadyNotified,
		})
	}
	c.JSON(http.StatusOK, alarms)
}
