package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims is the signed payload of both token kinds. Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Email string    `json:"email"`
	Role  string    `json:"role,omitempty"`
	Kind  TokenKind `json:"typ"`
}

func (c *Claims) UserID() string {
	return c.Subject
}

type Identity struct {
	UserID string
	Email  string
	Role   string
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenConfig is built once from Config. Access and refresh tokens are signed
// with different secrets so one kind can never verify as the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &TokenService{cfg: cfg, now: time.Now}, nil
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

func (s *TokenService) RefreshTTL() time.Duration {
	return s.cfg.RefreshTTL
}

func (s *TokenService) IssueAccessToken(id Identity) (IssuedToken, error) {
	return s.issue(id, TokenKindAccess, s.cfg.AccessSecret, s.cfg.AccessTTL)
}

func (s *TokenService) IssueRefreshToken(id Identity) (IssuedToken, error) {
	return s.issue(id, TokenKindRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
}

func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.verify(token, TokenKindAccess, s.cfg.AccessSecret)
}

func (s *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return s.verify(token, TokenKindRefresh, s.cfg.RefreshSecret)
}

func (s *TokenService) issue(id Identity, kind TokenKind, secret []byte, ttl time.Duration) (IssuedToken, error) {
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: id.Email,
		Role:  id.Role,
		Kind:  kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return IssuedToken{}, apperrors.Internal("Failed to sign token").WithCause(err)
	}
	return IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// verify checks the signature before any claim, so a token signed with the
// wrong key reports SignatureInvalid even when it has also expired.
func (s *TokenService) verify(token string, kind TokenKind, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.cfg.Issuer),
	)
	if err != nil {
		return nil, tokenError(err)
	}
	if !parsed.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, apperrors.TokenMalformed()
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, apperrors.TokenExpired()
	}
	return claims, nil
}

func tokenError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.SignatureInvalid().WithCause(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.TokenExpired().WithCause(err)
	default:
		return apperrors.TokenMalformed().WithCause(err)
	}
}
