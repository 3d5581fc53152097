package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes alerts for external push/WhatsApp workers.
type KafkaSink struct {
	writer MessageWriter
}

type alertPayload struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	Service       string    `json:"servicio"`
	Date          string    `json:"fecha"`
	Time          string    `json:"hora"`
	AlarmAt       time.Time `json:"alarma_en"`
	Message       string    `json:"mensaje"`
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// NewKafkaWriter builds the producer used by KafkaSink.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, alert Alert) error {
	a := alert.Appointment
	payload, err := json.Marshal(alertPayload{
		AppointmentID: a.AppointmentID.String(),
		UserID:        a.UserID.String(),
		Service:       a.Service,
		Date:          a.Date,
		Time:          a.Time,
		AlarmAt:       alert.AlarmAt,
		Message:       alert.Message(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	// Keyed by user so one user's alerts stay ordered within a partition.
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.UserID.String()),
		Value: payload,
	})
}
