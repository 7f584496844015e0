package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Sweeps get their own deadline, independent of any request.
const SweepTimeout = 30 * time.Second

// Pairing requests live for a fixed window; the redis record is kept a
// little longer so late polls still see "expired" instead of "not found".
const (
	PairingRequestTTL       = 5 * time.Minute
	PairingRecordRetention  = 15 * time.Minute
	PairingAuthorizePath    = "/auth/desktop"
	DefaultSessionRetention = 30 * 24 * time.Hour
)

// Per-minute limits. Login has its own configurable limit.
const (
	RateLimitWindow      = time.Minute
	PairingInitiateLimit = 10
	APIKeyRateLimit      = 60
)
