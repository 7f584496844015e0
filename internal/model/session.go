package model

import (
	"time"
)

// Session is one logged-in device or browser. RefreshTokenHash is the
// SHA-256 of the refresh token issued with it and is unique across rows.
type Session struct {
	ID               string     `db:"id" json:"id"`
	RefreshTokenHash string     `db:"refresh_token_hash" json:"-"`
	UserID           string     `db:"user_id" json:"userId"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expiresAt"`
	InvalidatedAt    *time.Time `db:"invalidated_at" json:"invalidatedAt,omitempty"`
}

// IsActive reports whether the session has not been invalidated and has not expired.
func (s *Session) IsActive(now time.Time) bool {
	return s.InvalidatedAt == nil && now.Before(s.ExpiresAt)
}

type CreateSessionParams struct {
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
}
