package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/openclaw/session-server-go/internal/database"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/repository"
)

// fakeSessionRepo keeps sessions in memory with the same uniqueness and
// idempotency rules as the postgres repository.
type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	nextID    int
	createErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindByRefreshTokenHash(ctx context.Context, hash string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[hash]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindActiveByRefreshTokenHash(ctx context.Context, hash string) (*model.Session, error) {
	s, err := r.FindByRefreshTokenHash(ctx, hash)
	if err != nil || s == nil || !s.IsActive(time.Now()) {
		return nil, err
	}
	return s, nil
}

func (r *fakeSessionRepo) ListActiveByUserID(ctx context.Context, userID string) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Session{}
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive(time.Now()) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if _, exists := r.sessions[params.RefreshTokenHash]; exists {
		return nil, repository.ErrDuplicateRefreshToken
	}
	r.nextID++
	s := &model.Session{
		ID:               "session-" + strconv.Itoa(r.nextID),
		RefreshTokenHash: params.RefreshTokenHash,
		UserID:           params.UserID,
		CreatedAt:        time.Now(),
		ExpiresAt:        params.ExpiresAt,
	}
	r.sessions[params.RefreshTokenHash] = s
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) Invalidate(ctx context.Context, hash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[hash]
	if !ok || s.InvalidatedAt != nil {
		return 0, nil
	}
	now := time.Now()
	s.InvalidatedAt = &now
	return 1, nil
}

func (r *fakeSessionRepo) InvalidateAllByUserID(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	now := time.Now()
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive(now) {
			s.InvalidatedAt = &now
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) DeleteExpiredAndInvalidated(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for hash, s := range r.sessions {
		if !s.IsActive(time.Now()) {
			delete(r.sessions, hash)
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for hash, s := range r.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(r.sessions, hash)
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return r
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

type mockAPIKeyRepo struct {
	mock.Mock
}

func (m *mockAPIKeyRepo) FindByUserIDAndName(ctx context.Context, userID, name string) (*model.APIKey, error) {
	args := m.Called(ctx, userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APIKey), args.Error(1)
}

func (m *mockAPIKeyRepo) ListByUserID(ctx context.Context, userID string) ([]model.APIKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.APIKey), args.Error(1)
}

func (m *mockAPIKeyRepo) Upsert(ctx context.Context, params model.UpsertAPIKeyParams) (*model.APIKey, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APIKey), args.Error(1)
}

func (m *mockAPIKeyRepo) Delete(ctx context.Context, userID, name string) (int64, error) {
	args := m.Called(ctx, userID, name)
	return args.Get(0).(int64), args.Error(1)
}

// fakeTxRunner runs fn without a real transaction; commitErr simulates a
// failed commit after fn succeeded.
type fakeTxRunner struct {
	commitErr error
	calls     int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	f.calls++
	if err := fn(nil); err != nil {
		return err
	}
	return f.commitErr
}

func testUser() *model.User {
	return &model.User{
		ID:    "user-1",
		Email: "ada@example.com",
		Role:  "admin",
	}
}
