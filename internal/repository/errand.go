package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hray3182/agenda/internal/database"
	"github.com/hray3182/agenda/internal/models"
)

type ErrandRepository struct {
	db *database.DB
}

func NewErrandRepository(db *database.DB) *ErrandRepository {
	return &ErrandRepository{db: db}
}

func (r *ErrandRepository) Create(ctx context.Context, e *models.Errand) error {
	if e.ErrandID == uuid.Nil {
		e.ErrandID = uuid.New()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO recados (recado_id, usuario_id, titulo, descripcion, fecha, hora, completado)
		 VALUES ($1, $2, $3, $4, $5::date, $6, $7)
		 RETURNING creado_en`,
		e.ErrandID, e.UserID, e.Title, e.Description, e.Date, e.Time, e.Completed,
	).Scan(&e.CreatedAt)
}

// GetByUserID lists errands; pending only when includeCompleted is false.
func (r *ErrandRepository) GetByUserID(ctx context.Context, userID uuid.UUID, includeCompleted bool) ([]*models.Errand, error) {
	query := `SELECT recado_id, usuario_id, titulo, descripcion, fecha::text, hora, completado, creado_en
		FROM recados WHERE usuario_id = $1`
	if !includeCompleted {
		query += ` AND completado = false`
	}
	query += ` ORDER BY fecha ASC, hora ASC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errands []*models.Errand
	for rows.Next() {
		e := &models.Errand{}
		if err := rows.Scan(&e.ErrandID, &e.UserID, &e.Title, &e.Description, &e.Date, &e.Time,
			&e.Completed, &e.CreatedAt); err != nil {
			return nil, err
		}
		errands = append(errands, e)
	}
	return errands, rows.Err()
}

func (r *ErrandRepository) Update(ctx context.Context, e *models.Errand) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE recados SET titulo = $1, descripcion = $2, fecha = $3::date, hora = $4, completado = $5
		 WHERE recado_id = $6 AND usuario_id = $7`,
		e.Title, e.Description, e.Date, e.Time, e.Completed, e.ErrandID, e.UserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ErrandRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM recados WHERE recado_id = $1 AND usuario_id = $2`,
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
