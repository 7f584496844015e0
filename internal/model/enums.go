package model

type PairingStatus string

const (
	PairingStatusPending    PairingStatus = "pending"
	PairingStatusAuthorized PairingStatus = "authorized"
	PairingStatusExpired    PairingStatus = "expired"
)
