package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/agenda/internal/models"
)

// handleAIMessage turns free text into an appointment through the AI client.
func (h *Handlers) handleAIMessage(ctx context.Context, msg *tgbotapi.Message) {
	if h.ai == nil {
		h.sendMessage(msg.Chat.ID, "El asistente no está activado, usa /help para ver los comandos")
		return
	}

	user, ok := h.linkedUser(ctx, msg.Chat.ID)
	if !ok {
		return
	}

	loc, err := h.evaluator.Zone("")
	if err != nil {
		h.logger.Error("Failed to resolve default zone", "error", err)
		return
	}

	draft, err := h.ai.ParseAppointment(ctx, msg.Text, h.now().In(loc))
	if err != nil {
		h.logger.Error("Failed to parse appointment", "error", err)
		h.sendMessage(msg.Chat.ID, "No he podido entenderte, inténtalo de nuevo")
		return
	}
	h.logger.Debug("AI draft", "raw", draft.RawResponse)

	if !draft.Complete() {
		reply := draft.AIMessage
		if reply == "" {
			reply = "¿Para qué es la cita, qué día y a qué hora?"
		}
		h.sendMessage(msg.Chat.ID, reply)
		return
	}

	a := &models.Appointment{
		UserID:         user.UserID,
		Service:        draft.Service,
		Description:    draft.Description,
		Date:           draft.Date,
		Time:           draft.Time,
		AlarmEnabled:   true,
		MinutesBefore:  draft.MinutesBefore,
		RecurrenceRule: draft.RecurrenceRule,
	}
	if err := a.Normalize(loc); err != nil {
		h.logger.Warn("Rejected AI draft", "error", err, "raw", draft.RawResponse)
		h.sendMessage(msg.Chat.ID, "La fecha, la hora o la repetición no son válidas, ¿puedes repetirlo?")
		return
	}

	exists, err := h.appointments.ExistsAt(ctx, user.UserID, a.Service, a.Date, a.Time, a.AppointmentID)
	if err != nil {
		h.logger.Error("Failed to check appointment", "error", err)
		h.sendMessage(msg.Chat.ID, "No se pudo guardar la cita, inténtalo más tarde")
		return
	}
	if exists {
		h.sendMessage(msg.Chat.ID, "Ya tienes esa cita apuntada:\n"+appointmentLine(a))
		return
	}

	if err := h.appointments.Create(ctx, a); err != nil {
		h.logger.Error("Failed to create appointment", "error", err)
		h.sendMessage(msg.Chat.ID, "No se pudo guardar la cita, inténtalo más tarde")
		return
	}
	if h.scheduler != nil {
		h.scheduler.Notify()
	}

	h.sendMessage(msg.Chat.ID, "✅ Cita guardada\n\n"+appointmentLine(a))
}
