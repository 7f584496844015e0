package model

import (
	"time"
)

type APIKey struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"userId"`
	Name          string    `db:"name" json:"name"`
	KeyCiphertext string    `db:"key_ciphertext" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

type UpsertAPIKeyParams struct {
	UserID        string
	Name          string
	KeyCiphertext string
}
