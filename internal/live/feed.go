// Package live keeps a continuously refreshed view of users and their open
// sessions for the admin dashboard.
package live

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/studyhub/internal/domain"
	"github.com/ashureev/studyhub/internal/store"
)

// Snapshot is the full current matching set after a store change. When Err
// is set the other fields are empty and the previous snapshot stays valid.
type Snapshot struct {
	Users    []*domain.User
	Sessions []*domain.Session
	Err      error
}

// Feed turns store change notifications into snapshots.
type Feed struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewFeed creates a feed over repo.
func NewFeed(repo store.Repository, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{repo: repo, logger: logger}
}

// Subscription delivers snapshots until it is closed.
type Subscription struct {
	events chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Snapshot {
	return s.events
}

// Close ends the subscription. No event is delivered after Close returns.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe starts a subscription for the users of ownerID and all open
// sessions. The first snapshot is delivered immediately.
func (f *Feed) Subscribe(ctx context.Context, ownerID string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan Snapshot),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	changes, unsubscribe := f.repo.Subscribe()
	go func() {
		defer close(sub.done)
		defer close(sub.events)
		defer unsubscribe()
		f.run(ctx, ownerID, changes, sub.events)
	}()
	return sub
}

func (f *Feed) run(ctx context.Context, ownerID string, changes <-chan store.Change, events chan<- Snapshot) {
	if !f.send(ctx, events, f.load(ctx, ownerID)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				f.logger.Debug("Change feed closed", "owner_id", ownerID)
				return
			}
			drain(changes)
			if !f.send(ctx, events, f.load(ctx, ownerID)) {
				return
			}
		}
	}
}

// drain coalesces notifications that piled up while a snapshot was loading.
func drain(changes <-chan store.Change) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (f *Feed) send(ctx context.Context, events chan<- Snapshot, snap Snapshot) bool {
	select {
	case events <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Feed) load(ctx context.Context, ownerID string) Snapshot {
	users, err := f.repo.ListUsers(ctx, ownerID)
	if err != nil {
		f.logger.Error("Error loading users", "owner_id", ownerID, "error", err)
		return Snapshot{Err: fmt.Errorf("%w: loading users: %w", domain.ErrSubscription, err)}
	}

	sessions, err := f.repo.FindSessions(ctx, store.SessionFilter{Open: store.Bool(true)})
	if err != nil {
		f.logger.Error("Error loading active sessions", "owner_id", ownerID, "error", err)
		return Snapshot{Err: fmt.Errorf("%w: loading active sessions: %w", domain.ErrSubscription, err)}
	}

	return Snapshot{Users: users, Sessions: sessions}
}
