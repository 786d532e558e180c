package attendance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/studyhub/internal/domain"
	"github.com/ashureev/studyhub/internal/store"
	"github.com/stretchr/testify/require"
)

const owner = "admin_test"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, store.Repository, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)}
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "studyhub.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, WithClock(clock.Now), WithLogger(logger)), repo, clock
}

func openSessionsFor(t *testing.T, repo store.Repository, userID string) []*domain.Session {
	t.Helper()
	sessions, err := repo.FindSessions(context.Background(), store.SessionFilter{UserID: userID, Open: store.Bool(true)})
	require.NoError(t, err)
	return sessions
}

// failingRepo rejects selected operations.
type failingRepo struct {
	store.Repository
	failCreateSession bool
	failFind          bool
	failClose         bool
	failDeleteUserID  string
}

var errInjected = errors.New("injected failure")

func (f *failingRepo) CreateSession(ctx context.Context, s *domain.Session) error {
	if f.failCreateSession {
		return errInjected
	}
	return f.Repository.CreateSession(ctx, s)
}

func (f *failingRepo) FindSessions(ctx context.Context, filter store.SessionFilter) ([]*domain.Session, error) {
	if f.failFind {
		return nil, errInjected
	}
	return f.Repository.FindSessions(ctx, filter)
}

func (f *failingRepo) CloseSession(ctx context.Context, id string) error {
	if f.failClose {
		return errInjected
	}
	return f.Repository.CloseSession(ctx, id)
}

func (f *failingRepo) DeleteUser(ctx context.Context, ownerID, userID string) error {
	if f.failDeleteUserID != "" && f.failDeleteUserID == userID {
		return errInjected
	}
	return f.Repository.DeleteUser(ctx, ownerID, userID)
}
