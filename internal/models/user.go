package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	UserID         uuid.UUID `json:"id"`
	Name           string    `json:"nombre"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	TelegramChatID *int64    `json:"telegram_chat_id"`
	CreatedAt      time.Time `json:"creado_en"`
}
