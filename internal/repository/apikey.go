package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/session-server-go/internal/model"
)

type APIKeyRepository interface {
	FindByUserIDAndName(ctx context.Context, userID, name string) (*model.APIKey, error)
	ListByUserID(ctx context.Context, userID string) ([]model.APIKey, error)
	Upsert(ctx context.Context, params model.UpsertAPIKeyParams) (*model.APIKey, error)
	Delete(ctx context.Context, userID, name string) (int64, error)
}

type apiKeyRepo struct {
	db *sqlx.DB
}

func NewAPIKeyRepository(db *sqlx.DB) APIKeyRepository {
	return &apiKeyRepo{db: db}
}

func (r *apiKeyRepo) FindByUserIDAndName(ctx context.Context, userID, name string) (*model.APIKey, error) {
	var key model.APIKey
	err := r.db.GetContext(ctx, &key, `
		SELECT * FROM api_keys WHERE user_id = $1 AND name = $2
	`, userID, name)
	return HandleNotFound(&key, err)
}

func (r *apiKeyRepo) ListByUserID(ctx context.Context, userID string) ([]model.APIKey, error) {
	keys := []model.APIKey{}
	err := r.db.SelectContext(ctx, &keys, `
		SELECT * FROM api_keys WHERE user_id = $1 ORDER BY name
	`, userID)
	return keys, err
}

func (r *apiKeyRepo) Upsert(ctx context.Context, params model.UpsertAPIKeyParams) (*model.APIKey, error) {
	var key model.APIKey
	err := r.db.GetContext(ctx, &key, `
		INSERT INTO api_keys (user_id, name, key_ciphertext)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET
			key_ciphertext = EXCLUDED.key_ciphertext,
			updated_at = NOW()
		RETURNING *
	`, params.UserID, params.Name, params.KeyCiphertext)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *apiKeyRepo) Delete(ctx context.Context, userID, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM api_keys WHERE user_id = $1 AND name = $2
	`, userID, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
