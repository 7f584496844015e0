package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/repository"
	"github.com/openclaw/session-server-go/internal/util"
)

// sessionCreateAttempts bounds retries on a refresh token hash collision.
const sessionCreateAttempts = 2

type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// IssuedSession is a persisted session together with the tokens that belong
// to it. Tokens are never returned unless the row was written.
type IssuedSession struct {
	Session *model.Session
	Tokens  TokenPair
}

func identityOf(user *model.User) Identity {
	return Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
}

// issueSession mints both tokens and records the session keyed by the
// refresh token hash. Any persistence failure discards the minted tokens.
func issueSession(
	ctx context.Context,
	tokens *TokenService,
	sessionRepo repository.SessionRepository,
	id Identity,
) (*IssuedSession, error) {
	for attempt := 1; ; attempt++ {
		access, err := tokens.IssueAccessToken(id)
		if err != nil {
			return nil, err
		}
		refresh, err := tokens.IssueRefreshToken(id)
		if err != nil {
			return nil, err
		}

		session, err := sessionRepo.Create(ctx, model.CreateSessionParams{
			UserID:           id.UserID,
			RefreshTokenHash: util.HashToken(refresh.Value),
			ExpiresAt:        refresh.ExpiresAt,
		})
		if errors.Is(err, repository.ErrDuplicateRefreshToken) {
			log.Warn().Str("userId", id.UserID).Int("attempt", attempt).Msg("refresh token collision")
			if attempt < sessionCreateAttempts {
				continue
			}
			return nil, apperrors.Conflict("Could not create a unique session").WithCause(err)
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}

		return &IssuedSession{
			Session: session,
			Tokens: TokenPair{
				AccessToken:           access.Value,
				AccessTokenExpiresAt:  access.ExpiresAt,
				RefreshToken:          refresh.Value,
				RefreshTokenExpiresAt: refresh.ExpiresAt,
			},
		}, nil
	}
}
