package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationEmail    = "email"
	NotificationPush     = "push"
	NotificationWhatsApp = "whatsapp"
	NotificationTelegram = "telegram"
)

const (
	StatusPending = "pending"
	StatusRead    = "read"
)

type Notification struct {
	NotificationID uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"usuario_id"`
	AppointmentID  *uuid.UUID `json:"cita_id"`
	Message        string     `json:"mensaje"`
	Type           string     `json:"tipo"`
	Status         string     `json:"estado"`
	CreatedAt      time.Time  `json:"creado_en"`
	UpdatedAt      time.Time  `json:"actualizado_en"`
}

// ValidNotificationType reports whether t is one of the accepted channels
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationEmail, NotificationPush, NotificationWhatsApp, NotificationTelegram:
		return true
	}
	return false
}
