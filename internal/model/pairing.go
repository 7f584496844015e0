package model

import (
	"time"
)

// PairingRequest links a device without a browser to a signed-in browser
// session. The stored status only moves pending -> authorized; "expired" is
// derived from ExpiresAt when read.
type PairingRequest struct {
	ID         string        `json:"id"`
	AuthCode   string        `json:"authCode"`
	DeviceName string        `json:"deviceName"`
	DeviceID   string        `json:"deviceId"`
	Status     PairingStatus `json:"status"`
	UserID     string        `json:"userId,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	ExpiresAt  time.Time     `json:"expiresAt"`
	// Tokens minted at authorization, encrypted until the device collects them.
	SealedTokens string `json:"-"`
}

// EffectiveStatus reports expired once the window has passed, whatever the
// stored status says.
func (p *PairingRequest) EffectiveStatus(now time.Time) PairingStatus {
	if now.After(p.ExpiresAt) {
		return PairingStatusExpired
	}
	return p.Status
}

type CreatePairingRequestParams struct {
	ID         string
	AuthCode   string
	DeviceName string
	DeviceID   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}
