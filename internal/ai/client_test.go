package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletions answers every chat completion with content.
func fakeCompletions(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseAppointment(t *testing.T) {
	srv := fakeCompletions(t, `{"action":"create_appointment","servicio":" Dentista ","descripcion":"",
		"fecha":"2024-06-16","hora":"10:00","minutos_antes":-5,"regla_recurrencia":"",
		"need_more_info":false,"ai_message":"Hecho"}`)
	c := New("key", srv.URL, "test-model")

	draft, err := c.ParseAppointment(context.Background(), "dentista mañana a las 10", time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Dentista", draft.Service)
	assert.Equal(t, "2024-06-16", draft.Date)
	assert.Zero(t, draft.MinutesBefore)
	assert.True(t, draft.Complete())
}

func TestParseAppointment_NeedsMoreInfo(t *testing.T) {
	srv := fakeCompletions(t, `{"action":"create_appointment","servicio":"Médico","descripcion":"",
		"fecha":"","hora":"","minutos_antes":30,"regla_recurrencia":"",
		"need_more_info":true,"ai_message":"¿Qué día y a qué hora?"}`)
	c := New("key", srv.URL, "test-model")

	draft, err := c.ParseAppointment(context.Background(), "cita con el médico", time.Now())
	require.NoError(t, err)
	assert.False(t, draft.Complete())
	assert.Equal(t, "¿Qué día y a qué hora?", draft.AIMessage)
}

func TestParseAppointment_BadJSON(t *testing.T) {
	srv := fakeCompletions(t, `not json`)
	c := New("key", srv.URL, "test-model")

	_, err := c.ParseAppointment(context.Background(), "hola", time.Now())
	assert.ErrorContains(t, err, "failed to parse AI response")
}
