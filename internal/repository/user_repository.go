package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserRepository отвечает за работу с пользователями.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	var saved models.User
	err := r.db.GetContext(ctx, &saved, `
		INSERT INTO users (email, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, user.Email, user.Username, user.PasswordHash, user.Role)
	if err != nil {
		return nil, fmt.Errorf("user repository: create %w", err)
	}
	return &saved, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

// GetByEmail возвращает пользователя по e-mail.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by email %w", err)
	}
	return &user, nil
}

// ExistsByEmail проверяет, занят ли e-mail.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email); err != nil {
		return false, fmt.Errorf("user repository: exists by email %w", err)
	}
	return exists, nil
}

// ListAdmins возвращает активных администраторов.
func (r *UserRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var admins []models.User
	err := r.db.SelectContext(ctx, &admins, `
		SELECT * FROM users WHERE role = $1 AND is_active = TRUE
	`, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("user repository: list admins %w", err)
	}
	return admins, nil
}
