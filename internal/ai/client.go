package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	ActionCreateAppointment = "create_appointment"
	ActionUnknown           = "unknown"
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Draft is an appointment extracted from a chat message. It still has to go
// through the same validation as one posted to the API.
type Draft struct {
	Action         string `json:"action"`
	Service        string `json:"servicio"`
	Description    string `json:"descripcion"`
	Date           string `json:"fecha"`
	Time           string `json:"hora"`
	MinutesBefore  int    `json:"minutos_antes"`
	RecurrenceRule string `json:"regla_recurrencia"`
	NeedMoreInfo   bool   `json:"need_more_info"`
	AIMessage      string `json:"ai_message"`
	RawResponse    string `json:"-"`
}

// Complete reports whether the draft carries enough to create an appointment.
func (d *Draft) Complete() bool {
	return d.Action == ActionCreateAppointment && !d.NeedMoreInfo &&
		d.Service != "" && d.Date != "" && d.Time != ""
}

const systemPromptTemplate = `Eres el asistente de una agenda de citas. Conviertes el mensaje del usuario en una cita estructurada.

Fecha y hora actual: %s (zona %s)

Reglas:
1. action = "create_appointment" si el usuario quiere apuntar una cita; si no, "unknown" y responde en ai_message.
2. servicio: con quién o para qué es la cita (por ejemplo "Dentista", "Análisis de sangre").
3. fecha en formato YYYY-MM-DD y hora en formato HH:MM (24 h). Resuelve expresiones relativas como "mañana" o "el lunes que viene" usando la fecha actual.
4. minutos_antes: cuántos minutos antes avisar. Si el usuario no lo dice, usa 30.
5. regla_recurrencia: una RRULE RFC 5545 sin COUNT (usa UNTIL) si la cita se repite, por ejemplo "FREQ=DAILY;INTERVAL=8" o "FREQ=WEEKLY;BYDAY=MO". Vacío si no se repite.
6. Si falta la fecha, la hora o el servicio, pon need_more_info = true y pregunta lo que falta en ai_message.
7. Los campos que no apliquen van como cadena vacía.`

func systemPrompt(now time.Time) string {
	return fmt.Sprintf(systemPromptTemplate, now.Format("2006-01-02 15:04 (Monday)"), now.Location())
}

// JSON Schema for structured output
var draftSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {
			"type": "string",
			"enum": ["create_appointment", "unknown"]
		},
		"servicio": {"type": "string"},
		"descripcion": {"type": "string"},
		"fecha": {"type": "string", "description": "YYYY-MM-DD"},
		"hora": {"type": "string", "description": "HH:MM"},
		"minutos_antes": {"type": "integer", "minimum": 0},
		"regla_recurrencia": {"type": "string", "description": "RFC 5545 RRULE without COUNT"},
		"need_more_info": {"type": "boolean"},
		"ai_message": {"type": "string"}
	},
	"required": ["action", "servicio", "descripcion", "fecha", "hora", "minutos_antes", "regla_recurrencia", "need_more_info", "ai_message"],
	"additionalProperties": false
}`)

// ParseAppointment asks the model to turn text into an appointment draft.
// now is passed in so relative dates resolve in the user's zone.
func (c *Client) ParseAppointment(ctx context.Context, text string, now time.Time) (*Draft, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(now),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "appointment",
				Schema: draftSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from AI")
	}

	content := resp.Choices[0].Message.Content
	draft := &Draft{RawResponse: content}

	if err := json.Unmarshal([]byte(content), draft); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	draft.Service = strings.TrimSpace(draft.Service)
	draft.RecurrenceRule = strings.TrimSpace(draft.RecurrenceRule)
	if draft.MinutesBefore < 0 {
		draft.MinutesBefore = 0
	}

	return draft, nil
}
