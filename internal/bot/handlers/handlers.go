package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/hray3182/agenda/internal/ai"
	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/notify"
	"github.com/hray3182/agenda/internal/repository"
)

// Sender is the part of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Users interface {
	GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error)
}

type Appointments interface {
	Create(ctx context.Context, a *models.Appointment) error
	GetUpcoming(ctx context.Context, userID uuid.UUID, fromDate string, limit int) ([]*models.Appointment, error)
	ExistsAt(ctx context.Context, userID uuid.UUID, service, date, clock string, excludeID uuid.UUID) (bool, error)
}

type Errands interface {
	GetByUserID(ctx context.Context, userID uuid.UUID, includeCompleted bool) ([]*models.Errand, error)
}

type Notifications interface {
	MarkReadByAppointment(ctx context.Context, appointmentID, userID uuid.UUID) (int64, error)
}

type AppointmentParser interface {
	ParseAppointment(ctx context.Context, text string, now time.Time) (*ai.Draft, error)
}

type Notifier interface {
	Notify()
}

// Deps wires the handlers. AI and Scheduler may be nil.
type Deps struct {
	API           Sender
	Users         Users
	Appointments  Appointments
	Errands       Errands
	Notifications Notifications
	AI            AppointmentParser
	Scheduler     Notifier
	Evaluator     alarm.Evaluator
	Now           func() time.Time
	Logger        *slog.Logger
}

type Handlers struct {
	api           Sender
	users         Users
	appointments  Appointments
	errands       Errands
	notifications Notifications
	ai            AppointmentParser
	scheduler     Notifier
	evaluator     alarm.Evaluator
	now           func() time.Time
	logger        *slog.Logger
}

func New(d Deps) *Handlers {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{
		api:           d.API,
		users:         d.Users,
		appointments:  d.Appointments,
		errands:       d.Errands,
		notifications: d.Notifications,
		ai:            d.AI,
		scheduler:     d.Scheduler,
		evaluator:     d.Evaluator,
		now:           d.Now,
		logger:        d.Logger,
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "citas":
		h.handleAppointmentList(ctx, msg)
	case "recados":
		h.handleErrandList(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Comando desconocido, usa /help para ver los comandos disponibles")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	h.handleAIMessage(ctx, msg)
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if strings.HasPrefix(callback.Data, notify.AckPrefix) {
		h.handleAck(ctx, callback)
		return
	}
	h.answerCallback(callback.ID, "")
}

// linkedUser resolves the account linked to the chat, replying with linking
// instructions when there is none.
func (h *Handlers) linkedUser(ctx context.Context, chatID int64) (*models.User, bool) {
	user, err := h.users.GetByTelegramChatID(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		h.sendMessage(chatID, fmt.Sprintf(
			"Este chat no está vinculado a ninguna cuenta.\nVincúlalo desde la app con el código %d", chatID))
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to get user by chat", "chat_id", chatID, "error", err)
		h.sendMessage(chatID, "No se pudo consultar tu cuenta, inténtalo más tarde")
		return nil, false
	}
	return user, true
}

func (h *Handlers) answerCallback(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		h.logger.Warn("Failed to answer callback", "error", err)
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := h.api.Send(edit); err != nil {
		h.logger.Warn("Failed to edit message", "error", err)
	}
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	name := ""
	if msg.From != nil {
		name = " " + msg.From.FirstName
	}
	text := fmt.Sprintf(`👋 ¡Hola%s!

Soy tu agenda de citas. Te aviso antes de cada cita con el tiempo que elijas.

Para recibir los avisos aquí, vincula este chat desde la app con el código:
%d

Usa /help para ver los comandos`, name, msg.Chat.ID)
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `📖 Comandos

/citas - Próximas citas
/recados - Recados pendientes
/start - Código para vincular este chat

💡 También puedes escribirme, por ejemplo:
• "Dentista mañana a las 10"
• "Pastilla cada 8 horas desde hoy a las 9, avísame 5 minutos antes"`
	h.sendMessage(msg.Chat.ID, text)
}

// displayDate turns YYYY-MM-DD into DD/MM/YYYY, leaving anything else as is.
func displayDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}
