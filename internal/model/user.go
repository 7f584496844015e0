package model

import (
	"time"
)

// User belongs to the surrounding application. This service only reads it.
type User struct {
	ID               string    `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	PasswordHash     *string   `db:"password_hash" json:"-"`
	Name             *string   `db:"name" json:"name,omitempty"`
	Role             string    `db:"role" json:"role"`
	SubscriptionTier string    `db:"subscription_tier" json:"subscriptionTier"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}
