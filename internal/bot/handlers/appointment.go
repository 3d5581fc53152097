package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/notify"
	"github.com/hray3182/agenda/internal/rrule"
)

const upcomingLimit = 10

func (h *Handlers) handleAppointmentList(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := h.linkedUser(ctx, msg.Chat.ID)
	if !ok {
		return
	}

	today := h.now().In(h.evaluator.Location()).Format("2006-01-02")
	appointments, err := h.appointments.GetUpcoming(ctx, user.UserID, today, upcomingLimit)
	if err != nil {
		h.logger.Error("Failed to get upcoming appointments", "user_id", user.UserID.String(), "error", err)
		h.sendMessage(msg.Chat.ID, "No se pudieron obtener tus citas, inténtalo más tarde")
		return
	}

	if len(appointments) == 0 {
		h.sendMessage(msg.Chat.ID, "📅 No tienes citas próximas")
		return
	}

	var sb strings.Builder
	sb.WriteString("📅 Próximas citas\n\n")
	for i, a := range appointments {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, appointmentLine(a)))
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

// appointmentLine renders one appointment with its alarm and recurrence.
func appointmentLine(a *models.Appointment) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s · %s", displayDate(a.Date), a.Time, a.Service))
	if a.AlarmEnabled {
		sb.WriteString(fmt.Sprintf("\n   ⏰ Aviso %d minutos antes", a.MinutesBefore))
	}
	if a.IsRecurring() {
		sb.WriteString("\n   🔁 " + rrule.HumanReadable(a.RecurrenceRule))
	}
	return sb.String()
}

// handleAck marks the alarm notifications of an appointment as read when the
// user presses the confirm button of a Telegram alert.
func (h *Handlers) handleAck(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	var chatID int64
	switch {
	case callback.Message != nil && callback.Message.Chat != nil:
		chatID = callback.Message.Chat.ID
	case callback.From != nil:
		// Inline messages come without Message; a private chat id is the user id.
		chatID = callback.From.ID
	default:
		h.answerCallback(callback.ID, "")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(callback.Data, notify.AckPrefix))
	if err != nil {
		h.answerCallback(callback.ID, "Cita no válida")
		return
	}

	user, ok := h.linkedUser(ctx, chatID)
	if !ok {
		h.answerCallback(callback.ID, "")
		return
	}

	n, err := h.notifications.MarkReadByAppointment(ctx, id, user.UserID)
	if err != nil {
		h.logger.Error("Failed to acknowledge alarm", "appointment_id", id.String(), "error", err)
		h.answerCallback(callback.ID, "No se pudo confirmar, inténtalo más tarde")
		return
	}

	h.answerCallback(callback.ID, "Cita confirmada")
	if callback.Message != nil {
		h.editMessageText(chatID, callback.Message.MessageID, callback.Message.Text+"\n\n✅ Confirmada")
	}
	h.logger.Info("Alarm acknowledged", "appointment_id", id.String(), "notifications", n)
}
