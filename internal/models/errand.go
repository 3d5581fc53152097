package models

import (
	"time"

	"github.com/google/uuid"
)

// Errand is a "recado": a dated task without an alarm.
type Errand struct {
	ErrandID    uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"usuario_id"`
	Title       string    `json:"titulo"`
	Description string    `json:"descripcion"`
	Date        string    `json:"fecha"`
	Time        string    `json:"hora"`
	Completed   bool      `json:"completado"`
	CreatedAt   time.Time `json:"creado_en"`
}
