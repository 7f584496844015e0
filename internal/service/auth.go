package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/repository"
	"github.com/openclaw/session-server-go/internal/util"
)

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// timingHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
func timingHash() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = util.HashPassword("not-a-real-password")
	})
	return dummyHash
}

type RefreshResult struct {
	AccessToken IssuedToken
	UserID      string
	SessionID   string
}

// AuthService drives login, refresh, logout and identity lookup. It holds no
// state beyond its collaborators.
type AuthService struct {
	tokens      *TokenService
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
}

func NewAuthService(
	tokens *TokenService,
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
) *AuthService {
	return &AuthService{
		tokens:      tokens,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
	}
}

// Authenticate checks an email/password pair. Every failure is the same
// Unauthenticated error.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.Unauthenticated()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if user == nil || user.PasswordHash == nil {
		util.CheckPasswordHash(password, timingHash())
		return nil, apperrors.Unauthenticated()
	}

	if !util.CheckPasswordHash(password, *user.PasswordHash) {
		return nil, apperrors.Unauthenticated()
	}

	return user, nil
}

// Login mints a token pair for an already verified user and persists the
// session. If the session row cannot be written no tokens are returned.
func (s *AuthService) Login(ctx context.Context, user *model.User) (*IssuedSession, error) {
	issued, err := issueSession(ctx, s.tokens, s.sessionRepo, identityOf(user))
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	log.Info().
		Str("userId", user.ID).
		Str("sessionId", issued.Session.ID).
		Time("expiresAt", issued.Session.ExpiresAt).
		Msg("session created")

	return issued, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		log.Debug().Str("code", string(apperrors.GetCode(err))).Msg("refresh token rejected")
		return nil, err
	}

	session, err := s.sessionRepo.FindActiveByRefreshTokenHash(ctx, util.HashToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil || session.UserID != claims.UserID() {
		log.Debug().Str("userId", claims.UserID()).Msg("refresh token has no active session")
		return nil, apperrors.SessionNotFound()
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, apperrors.SessionNotFound()
	}

	access, err := s.tokens.IssueAccessToken(identityOf(user))
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken: access,
		UserID:      user.ID,
		SessionID:   session.ID,
	}, nil
}

// Logout invalidates the session behind the refresh token. Unknown or
// already invalidated tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	count, err := s.sessionRepo.Invalidate(ctx, util.HashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}

	log.Info().Int64("invalidated", count).Msg("logout")
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	count, err := s.sessionRepo.InvalidateAllByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate sessions: %w", err)
	}

	log.Info().Str("userId", userID).Int64("invalidated", count).Msg("logout from all sessions")
	return count, nil
}

// Me verifies an access token and returns the user as currently stored, not
// as described by the token claims.
func (s *AuthService) Me(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		log.Debug().Str("code", string(apperrors.GetCode(err))).Msg("access token rejected")
		return nil, apperrors.Unauthenticated().WithCause(err)
	}
	return s.CurrentUser(ctx, claims.UserID())
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, apperrors.UserNotFound()
	}
	return user, nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	sessions, err := s.sessionRepo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
