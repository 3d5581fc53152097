package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hray3182/agenda/internal/database"
	"github.com/hray3182/agenda/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.UserID == uuid.Nil {
		user.UserID = uuid.New()
	}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO usuarios (usuario_id, nombre, email, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING creado_en`,
		user.UserID, user.Name, user.Email, user.PasswordHash,
	).Scan(&user.CreatedAt)
	return duplicate(err)
}

func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, `WHERE usuario_id = $1`, userID)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `WHERE email = $1`, email)
}

func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	return r.getOne(ctx, `WHERE telegram_chat_id = $1`, chatID)
}

func (r *UserRepository) SetTelegramChatID(ctx context.Context, userID uuid.UUID, chatID *int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE usuarios SET telegram_chat_id = $1 WHERE usuario_id = $2`,
		chatID, userID,
	)
	if err != nil {
		return duplicate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT usuario_id, nombre, email, password_hash, telegram_chat_id, creado_en
		 FROM usuarios `+where,
		arg,
	).Scan(&user.UserID, &user.Name, &user.Email, &user.PasswordHash, &user.TelegramChatID, &user.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}
