package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (h *Handlers) handleErrandList(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := h.linkedUser(ctx, msg.Chat.ID)
	if !ok {
		return
	}

	errands, err := h.errands.GetByUserID(ctx, user.UserID, false)
	if err != nil {
		h.logger.Error("Failed to get errands", "user_id", user.UserID.String(), "error", err)
		h.sendMessage(msg.Chat.ID, "No se pudieron obtener tus recados, inténtalo más tarde")
		return
	}

	if len(errands) == 0 {
		h.sendMessage(msg.Chat.ID, "✅ No tienes recados pendientes")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 Recados pendientes\n\n")
	for _, e := range errands {
		title := e.Title
		if len([]rune(title)) > 40 {
			title = string([]rune(title)[:40]) + "..."
		}
		sb.WriteString(fmt.Sprintf("⬜ %s\n   📅 %s", title, displayDate(e.Date)))
		if e.Time != "" {
			sb.WriteString(" " + e.Time)
		}
		sb.WriteString("\n\n")
	}

	h.sendMessage(msg.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}
