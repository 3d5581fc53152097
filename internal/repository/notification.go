package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/agenda/internal/database"
	"github.com/hray3182/agenda/internal/models"
)

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.NotificationID == uuid.Nil {
		n.NotificationID = uuid.New()
	}
	if n.Status == "" {
		n.Status = models.StatusPending
	}
	if !models.ValidNotificationType(n.Type) {
		return fmt.Errorf("invalid notification type %q", n.Type)
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO notificaciones (notificacion_id, usuario_id, cita_id, mensaje, tipo, estado)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING creado_en, actualizado_en`,
		n.NotificationID, n.UserID, n.AppointmentID, n.Message, n.Type, n.Status,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
}

func (r *NotificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT notificacion_id, usuario_id, cita_id, mensaje, tipo, estado, creado_en, actualizado_en
		 FROM notificaciones WHERE usuario_id = $1
		 ORDER BY creado_en DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.NotificationID, &n.UserID, &n.AppointmentID, &n.Message, &n.Type,
			&n.Status, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *NotificationRepository) SetStatus(ctx context.Context, id, userID uuid.UUID, status string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE notificaciones SET estado = $1, actualizado_en = NOW()
		 WHERE notificacion_id = $2 AND usuario_id = $3`,
		status, id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM notificaciones WHERE usuario_id = $1`,
		userID,
	)
	return err
}

// DeleteReadBefore removes read notifications last touched before cutoff.
func (r *NotificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM notificaciones WHERE estado = 'read' AND actualizado_en < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkReadByAppointment marks every notification of one appointment as read.
func (r *NotificationRepository) MarkReadByAppointment(ctx context.Context, appointmentID, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE notificaciones SET estado = 'read', actualizado_en = NOW()
		 WHERE cita_id = $1 AND usuario_id = $2 AND estado <> 'read'`,
		appointmentID, userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
