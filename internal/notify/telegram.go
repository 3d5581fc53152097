package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
	"github.com/hray3182/agenda/internal/rrule"
)

// AckPrefix starts the callback data of the confirm button.
const AckPrefix = "cita_ack:"

type UserFinder interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// MessageSender is satisfied by *tgbotapi.BotAPI.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramSink struct {
	api   MessageSender
	users UserFinder
}

func NewTelegramSink(api MessageSender, users UserFinder) *TelegramSink {
	return &TelegramSink{api: api, users: users}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, alert Alert) error {
	user, err := s.users.GetByID(ctx, alert.Appointment.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSkip
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.TelegramChatID == nil {
		return ErrSkip
	}

	msg := tgbotapi.NewMessage(*user.TelegramChatID, alertText(alert))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirmar", AckPrefix+alert.Appointment.AppointmentID.String()),
		),
	)

	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func alertText(alert Alert) string {
	a := alert.Appointment
	text := "⏰ Recordatorio de cita\n\n" + alert.Message()
	text += "\n📅 " + alert.ScheduledAt.Format("02/01/2006 15:04")
	if a.Description != "" {
		text += "\n\n" + a.Description
	}
	if a.IsRecurring() {
		text += "\n🔄 " + rrule.HumanReadable(a.RecurrenceRule)
	}
	return text
}
