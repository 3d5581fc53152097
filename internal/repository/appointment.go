package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/agenda/internal/database"
	"github.com/hray3182/agenda/internal/models"
)

const appointmentColumns = `cita_id, usuario_id, servicio, descripcion, fecha::text, hora, zona_horaria,
	alarma, minutos_antes, regla_recurrencia, notificado_en, creado_en, actualizado_en`

type AppointmentRepository struct {
	db *database.DB
}

func NewAppointmentRepository(db *database.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Create(ctx context.Context, a *models.Appointment) error {
	if a.AppointmentID == uuid.Nil {
		a.AppointmentID = uuid.New()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO citas (cita_id, usuario_id, servicio, descripcion, fecha, hora, zona_horaria,
		 alarma, minutos_antes, regla_recurrencia)
		 VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10)
		 RETURNING creado_en, actualizado_en`,
		a.AppointmentID, a.UserID, a.Service, a.Description, a.Date, a.Time, a.Timezone,
		a.AlarmEnabled, a.MinutesBefore, a.RecurrenceRule,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AppointmentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM citas WHERE usuario_id = $1
		 ORDER BY fecha ASC, hora ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAppointments(rows)
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM citas WHERE cita_id = $1 AND usuario_id = $2`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appointments, err := r.scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(appointments) == 0 {
		return nil, ErrNotFound
	}
	return appointments[0], nil
}

// GetUpcoming returns appointments dated on or after fromDate (YYYY-MM-DD).
func (r *AppointmentRepository) GetUpcoming(ctx context.Context, userID uuid.UUID, fromDate string, limit int) ([]*models.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM citas WHERE usuario_id = $1 AND fecha >= $2::date
		 ORDER BY fecha ASC, hora ASC
		 LIMIT $3`,
		userID, fromDate, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAppointments(rows)
}

// ExistsAt reports whether the user already has an appointment for the same
// service at the same date and time, ignoring excludeID.
func (r *AppointmentRepository) ExistsAt(ctx context.Context, userID uuid.UUID, service, date, clock string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM citas
		   WHERE usuario_id = $1 AND servicio = $2 AND fecha = $3::date AND hora = $4 AND cita_id <> $5
		 )`,
		userID, service, date, clock, excludeID,
	).Scan(&exists)
	return exists, err
}

// Update replaces the editable fields and writes a.NotifiedAt as given.
func (r *AppointmentRepository) Update(ctx context.Context, a *models.Appointment) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE citas SET servicio = $1, descripcion = $2, fecha = $3::date, hora = $4, zona_horaria = $5,
		 alarma = $6, minutos_antes = $7, regla_recurrencia = $8, notificado_en = $9, actualizado_en = NOW()
		 WHERE cita_id = $10 AND usuario_id = $11`,
		a.Service, a.Description, a.Date, a.Time, a.Timezone, a.AlarmEnabled, a.MinutesBefore,
		a.RecurrenceRule, a.NotifiedAt, a.AppointmentID, a.UserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM citas WHERE cita_id = $1 AND usuario_id = $2`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAlarmCandidates returns alarm-enabled appointments dated on or after
// sinceDate. The evaluator decides which of them are actually due.
func (r *AppointmentRepository) GetAlarmCandidates(ctx context.Context, sinceDate string) ([]*models.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM citas WHERE alarma = true AND fecha >= $1::date
		 ORDER BY fecha ASC, hora ASC`,
		sinceDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAppointments(rows)
}

// GetUserAlarmCandidates is GetAlarmCandidates limited to one user.
func (r *AppointmentRepository) GetUserAlarmCandidates(ctx context.Context, userID uuid.UUID, sinceDate string) ([]*models.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM citas WHERE usuario_id = $1 AND alarma = true AND fecha >= $2::date
		 ORDER BY fecha ASC, hora ASC`,
		userID, sinceDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAppointments(rows)
}

// GetRecurringDue returns recurring appointments dated on or before untilDate.
func (r *AppointmentRepository) GetRecurringDue(ctx context.Context, untilDate string) ([]*models.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM citas WHERE regla_recurrencia <> '' AND fecha <= $1::date`,
		untilDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAppointments(rows)
}

func (r *AppointmentRepository) SetNotifiedAt(ctx context.Context, id uuid.UUID, notifiedAt *time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE citas SET notificado_en = $1 WHERE cita_id = $2`,
		notifiedAt, id,
	)
	return err
}

// MoveOccurrence reschedules a recurring appointment and clears notificado_en.
func (r *AppointmentRepository) MoveOccurrence(ctx context.Context, id uuid.UUID, date, clock string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE citas SET fecha = $1::date, hora = $2, notificado_en = NULL, actualizado_en = NOW()
		 WHERE cita_id = $3`,
		date, clock, id,
	)
	return err
}

func (r *AppointmentRepository) scanAppointments(rows rowScanner) ([]*models.Appointment, error) {
	var appointments []*models.Appointment
	for rows.Next() {
		a := &models.Appointment{}
		if err := rows.Scan(&a.AppointmentID, &a.UserID, &a.Service, &a.Description, &a.Date, &a.Time,
			&a.Timezone, &a.AlarmEnabled, &a.MinutesBefore, &a.RecurrenceRule, &a.NotifiedAt,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

// ClearRecurrence turns an exhausted series into a one-off appointment.
func (r *AppointmentRepository) ClearRecurrence(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE citas SET regla_recurrencia = '', actualizado_en = NOW() WHERE cita_id = $1`,
		id,
	)
	return err
}
