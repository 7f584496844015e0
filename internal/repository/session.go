package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/session-server-go/internal/database"
	"github.com/openclaw/session-server-go/internal/model"
)

// ErrDuplicateRefreshToken is returned by Create when another row already
// carries the same refresh token hash.
var ErrDuplicateRefreshToken = errors.New("session with this refresh token already exists")

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindByRefreshTokenHash(ctx context.Context, hash string) (*model.Session, error)
	FindActiveByRefreshTokenHash(ctx context.Context, hash string) (*model.Session, error)
	ListActiveByUserID(ctx context.Context, userID string) ([]model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// Invalidate stamps invalidated_at on live rows for the hash and returns
	// how many changed. Zero means nothing to do, not an error.
	Invalidate(ctx context.Context, hash string) (int64, error)
	InvalidateAllByUserID(ctx context.Context, userID string) (int64, error)
	DeleteExpiredAndInvalidated(ctx context.Context) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByRefreshTokenHash(ctx context.Context, hash string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE refresh_token_hash = $1
	`, hash)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByRefreshTokenHash(ctx context.Context, hash string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE refresh_token_hash = $1
		AND invalidated_at IS NULL
		AND expires_at > NOW()
	`, hash)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) ListActiveByUserID(ctx context.Context, userID string) ([]model.Session, error) {
	sessions := []model.Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE user_id = $1
		AND invalidated_at IS NULL
		AND expires_at > NOW()
		ORDER BY created_at DESC
	`, userID)
	return sessions, err
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (user_id, refresh_token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.UserID, params.RefreshTokenHash, params.ExpiresAt)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateRefreshToken
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Invalidate(ctx context.Context, hash string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET invalidated_at = NOW()
		WHERE refresh_token_hash = $1 AND invalidated_at IS NULL
	`, hash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) InvalidateAllByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET invalidated_at = NOW()
		WHERE user_id = $1 AND invalidated_at IS NULL AND expires_at > NOW()
	`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpiredAndInvalidated is a single predicate delete, so rows inserted
// while it runs are outside its snapshot.
func (r *sessionRepo) DeleteExpiredAndInvalidated(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at <= NOW() OR invalidated_at IS NOT NULL
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
