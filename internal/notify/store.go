package notify

import (
	"context"

	"github.com/hray3182/agenda/internal/models"
)

type NotificationCreator interface {
	Create(ctx context.Context, n *models.Notification) error
}

// StoreSink records the alert as an in-app notification the front end lists.
type StoreSink struct {
	repo NotificationCreator
}

func NewStoreSink(repo NotificationCreator) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Send(ctx context.Context, alert Alert) error {
	appointmentID := alert.Appointment.AppointmentID
	return s.repo.Create(ctx, &models.Notification{
		UserID:        alert.Appointment.UserID,
		AppointmentID: &appointmentID,
		Message:       alert.Message(),
		Type:          models.NotificationPush,
		Status:        models.StatusPending,
	})
}
