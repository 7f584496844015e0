package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/openclaw/session-server-go/internal/jobs"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/service"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockAuth) Login(ctx context.Context, user *model.User) (*service.IssuedSession, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IssuedSession), args.Error(1)
}

func (m *mockAuth) Refresh(ctx context.Context, refreshToken string) (*service.RefreshResult, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RefreshResult), args.Error(1)
}

func (m *mockAuth) Logout(ctx context.Context, refreshToken string) error {
	return m.Called(ctx, refreshToken).Error(0)
}

func (m *mockAuth) LogoutAll(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAuth) Me(ctx context.Context, accessToken string) (*model.User, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockAuth) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Session), args.Error(1)
}

type mockPairing struct {
	mock.Mock
}

func (m *mockPairing) Initiate(ctx context.Context, deviceName, deviceID string) (*service.PairingInitiation, error) {
	args := m.Called(ctx, deviceName, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PairingInitiation), args.Error(1)
}

func (m *mockPairing) Lookup(ctx context.Context, code string) (*model.PairingRequest, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PairingRequest), args.Error(1)
}

func (m *mockPairing) Authorize(ctx context.Context, code, userID string) (*service.IssuedSession, error) {
	args := m.Called(ctx, code, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IssuedSession), args.Error(1)
}

func (m *mockPairing) Poll(ctx context.Context, code, deviceID string) (*service.PairingPollResult, error) {
	args := m.Called(ctx, code, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PairingPollResult), args.Error(1)
}

func (m *mockPairing) Status(ctx context.Context, code, deviceID string) (*service.PairingPollResult, error) {
	args := m.Called(ctx, code, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PairingPollResult), args.Error(1)
}

type mockAPIKeys struct {
	mock.Mock
}

func (m *mockAPIKeys) Store(ctx context.Context, userID, name, secret string) (*service.APIKeyView, error) {
	args := m.Called(ctx, userID, name, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.APIKeyView), args.Error(1)
}

func (m *mockAPIKeys) List(ctx context.Context, userID string) ([]service.APIKeyView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.APIKeyView), args.Error(1)
}

func (m *mockAPIKeys) Reveal(ctx context.Context, userID, name string) (string, error) {
	args := m.Called(ctx, userID, name)
	return args.String(0), args.Error(1)
}

func (m *mockAPIKeys) Delete(ctx context.Context, userID, name string) error {
	return m.Called(ctx, userID, name).Error(0)
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) Sweep(ctx context.Context) (jobs.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(jobs.SweepResult), args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}
