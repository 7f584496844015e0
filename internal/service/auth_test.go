package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/util"
)

func newTestAuthService(t *testing.T) (*AuthService, *fakeSessionRepo, *mockUserRepo) {
	t.Helper()
	tokens, err := NewTokenService(testTokenConfig())
	require.NoError(t, err)
	sessions := newFakeSessionRepo()
	users := new(mockUserRepo)
	return NewAuthService(tokens, sessions, users), sessions, users
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, _, users := newTestAuthService(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2!"), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)

	user := testUser()
	user.PasswordHash = &hashStr
	noPassword := &model.User{ID: "user-2", Email: "sso@example.com"}

	users.On("FindByEmail", ctx, "ada@example.com").Return(user, nil)
	users.On("FindByEmail", ctx, "sso@example.com").Return(noPassword, nil)
	users.On("FindByEmail", ctx, "ghost@example.com").Return(nil, nil)

	t.Run("accepts correct password", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, " ada@example.com ", "hunter2!")
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.ID)
	})

	t.Run("every failure is unauthenticated", func(t *testing.T) {
		cases := []struct{ email, password string }{
			{"ada@example.com", "wrong"},
			{"ghost@example.com", "hunter2!"},
			{"sso@example.com", "anything"},
			{"", "hunter2!"},
			{"ada@example.com", ""},
		}
		for _, tc := range cases {
			_, err := svc.Authenticate(ctx, tc.email, tc.password)
			assert.ErrorIs(t, err, apperrors.Unauthenticated(), tc.email)
		}
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a session keyed by the refresh token hash", func(t *testing.T) {
		svc, sessions, _ := newTestAuthService(t)

		issued, err := svc.Login(ctx, testUser())
		require.NoError(t, err)
		assert.NotEmpty(t, issued.Tokens.AccessToken)
		assert.NotEmpty(t, issued.Tokens.RefreshToken)
		assert.NotEqual(t, issued.Tokens.AccessToken, issued.Tokens.RefreshToken)

		stored, err := sessions.FindByRefreshTokenHash(ctx, util.HashToken(issued.Tokens.RefreshToken))
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, issued.Session.ID, stored.ID)
		assert.Equal(t, "user-1", stored.UserID)
		assert.True(t, stored.ExpiresAt.Equal(issued.Tokens.RefreshTokenExpiresAt))
	})

	t.Run("two logins produce two sessions", func(t *testing.T) {
		svc, sessions, _ := newTestAuthService(t)

		first, err := svc.Login(ctx, testUser())
		require.NoError(t, err)
		second, err := svc.Login(ctx, testUser())
		require.NoError(t, err)

		assert.NotEqual(t, first.Session.ID, second.Session.ID)
		assert.Equal(t, 2, sessions.count())
	})

	t.Run("returns no tokens when the session cannot be stored", func(t *testing.T) {
		svc, sessions, _ := newTestAuthService(t)
		sessions.createErr = errors.New("connection reset")

		issued, err := svc.Login(ctx, testUser())
		assert.Error(t, err)
		assert.Nil(t, issued)
		assert.Equal(t, 0, sessions.count())
	})
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a new access token for an active session", func(t *testing.T) {
		svc, _, users := newTestAuthService(t)
		users.On("FindByID", ctx, "user-1").Return(testUser(), nil)

		issued, err := svc.Login(ctx, testUser())
		require.NoError(t, err)

		result, err := svc.Refresh(ctx, issued.Tokens.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, issued.Session.ID, result.SessionID)

		claims, err := svc.tokens.VerifyAccessToken(result.AccessToken.Value)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID())
	})

	t.Run("rejects a valid token whose session was invalidated", func(t *testing.T) {
		svc, _, users := newTestAuthService(t)
		users.On("FindByID", ctx, "user-1").Return(testUser(), nil)

		issued, err := svc.Login(ctx, testUser())
		require.NoError(t, err)
		require.NoError(t, svc.Logout(ctx, issued.Tokens.RefreshToken))

		_, err = svc.Refresh(ctx, issued.Tokens.RefreshToken)
		assert.ErrorIs(t, err, apperrors.SessionNotFound())
		assert.True(t, apperrors.IsAuthFailure(err))
	})

	t.Run("rejects a valid token with no session row", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)

		refresh, err := svc.tokens.IssueRefreshToken(Identity{UserID: "user-1"})
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, refresh.Value)
		assert.ErrorIs(t, err, apperrors.SessionNotFound())
	})

	t.Run("rejects an access token presented as refresh", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)

		issued, err := svc.Login(ctx, testUser())
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, issued.Tokens.AccessToken)
		assert.ErrorIs(t, err, apperrors.SignatureInvalid())
	})

	t.Run("rejects when the user no longer exists", func(t *testing.T) {
		svc, _, users := newTestAuthService(t)
		users.On("FindByID", ctx, "user-1").Return(nil, nil)

		issued, err := svc.Login(ctx, testUser())
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, issued.Tokens.RefreshToken)
		assert.True(t, apperrors.IsAuthFailure(err))
	})
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newTestAuthService(t)

	issued, err := svc.Login(ctx, testUser())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, issued.Tokens.RefreshToken))

	stored, err := sessions.FindByRefreshTokenHash(ctx, util.HashToken(issued.Tokens.RefreshToken))
	require.NoError(t, err)
	assert.NotNil(t, stored.InvalidatedAt)

	t.Run("is idempotent", func(t *testing.T) {
		assert.NoError(t, svc.Logout(ctx, issued.Tokens.RefreshToken))
	})

	t.Run("unknown or missing token succeeds", func(t *testing.T) {
		assert.NoError(t, svc.Logout(ctx, "never-issued"))
		assert.NoError(t, svc.Logout(ctx, ""))
	})
}

func TestAuthService_LogoutAll(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAuthService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, testUser())
		require.NoError(t, err)
	}

	count, err := svc.LogoutAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	sessions, err := svc.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	count, err = svc.LogoutAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestAuthService_Me(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the live user record", func(t *testing.T) {
		svc, _, users := newTestAuthService(t)
		current := testUser()
		current.Role = "user"
		users.On("FindByID", ctx, "user-1").Return(current, nil)

		access, err := svc.tokens.IssueAccessToken(Identity{UserID: "user-1", Email: "ada@example.com", Role: "admin"})
		require.NoError(t, err)

		user, err := svc.Me(ctx, access.Value)
		require.NoError(t, err)
		assert.Equal(t, "user", user.Role, "role comes from the user store, not the token")
	})

	t.Run("deleted user is user not found", func(t *testing.T) {
		svc, _, users := newTestAuthService(t)
		users.On("FindByID", ctx, "user-1").Return(nil, nil)

		access, err := svc.tokens.IssueAccessToken(Identity{UserID: "user-1"})
		require.NoError(t, err)

		_, err = svc.Me(ctx, access.Value)
		assert.ErrorIs(t, err, apperrors.UserNotFound())
	})

	t.Run("bad token is unauthenticated", func(t *testing.T) {
		svc, _, users := newTestAuthService(t)

		_, err := svc.Me(ctx, "garbage")
		assert.ErrorIs(t, err, apperrors.Unauthenticated())
		assert.ErrorIs(t, err, apperrors.TokenMalformed())
		users.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("expired token is unauthenticated", func(t *testing.T) {
		svc, _, _ := newTestAuthService(t)
		svc.tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
		access, err := svc.tokens.IssueAccessToken(Identity{UserID: "user-1"})
		require.NoError(t, err)
		svc.tokens.now = time.Now

		_, err = svc.Me(ctx, access.Value)
		assert.ErrorIs(t, err, apperrors.Unauthenticated())
		assert.ErrorIs(t, err, apperrors.TokenExpired())
	})
}
