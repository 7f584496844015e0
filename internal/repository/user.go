package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/session-server-go/internal/model"
)

// UserRepository is read-only; the users table belongs to the application.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, email, password_hash, name, role, subscription_tier, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, email, password_hash, name, role, subscription_tier, created_at, updated_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`, email)
	return HandleNotFound(&user, err)
}
