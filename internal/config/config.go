package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port               int           `env:"PORT" envDefault:"8080"`
	DatabaseURL        string        `env:"DATABASE_URL,required"`
	RedisURL           string        `env:"REDIS_URL,required"`
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	TokenIssuer        string        `env:"TOKEN_ISSUER" envDefault:"session-server"`
	EncryptionKey      string        `env:"ENCRYPTION_KEY"`
	CronSecret         string        `env:"CRON_SECRET"`
	AppBaseURL         string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	SessionRetention   time.Duration `env:"SESSION_RETENTION" envDefault:"720h"`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	LoginRateLimit     int           `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
	CookieSecure       bool          `env:"COOKIE_SECURE" envDefault:"false"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// PairingURL builds the browser URL a device hands to its user.
func (c *Config) PairingURL() string {
	return strings.TrimRight(c.AppBaseURL, "/") + PairingAuthorizePath
}

func (c *Config) Validate(isProduction bool) error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		log.Warn().
			Dur("accessTTL", c.AccessTokenTTL).
			Dur("refreshTTL", c.RefreshTokenTTL).
			Msg("access token TTL is not shorter than refresh token TTL")
	}

	if isProduction {
		if err := validateSecret("ACCESS_TOKEN_SECRET", c.AccessTokenSecret); err != nil {
			return err
		}
		if err := validateSecret("REFRESH_TOKEN_SECRET", c.RefreshTokenSecret); err != nil {
			return err
		}
		if err := validateSecret("ENCRYPTION_KEY", c.EncryptionKey); err != nil {
			return err
		}

		if c.CronSecret == "" {
			log.Warn().Msg("CRON_SECRET is empty in production: maintenance sweep endpoint is unauthenticated")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if !c.CookieSecure {
			log.Warn().Msg("COOKIE_SECURE is false in production: credential cookies sent over plain HTTP")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
