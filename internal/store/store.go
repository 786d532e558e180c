// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/studyhub/internal/domain"
)

// SessionFilter selects sessions by equality. Zero fields match everything.
type SessionFilter struct {
	UserID string
	Open   *bool
}

// Repository defines the interface for persisting users and sessions.
// Login and logout instants are stamped by the store clock.
type Repository interface {
	// CreateUser assigns an ID and creation time and inserts the user.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user owned by ownerID.
	GetUser(ctx context.Context, ownerID, userID string) (*domain.User, error)

	// ListUsers returns every user owned by ownerID, oldest first.
	ListUsers(ctx context.Context, ownerID string) ([]*domain.User, error)

	// FindUsersByName returns users of ownerID whose username matches exactly.
	FindUsersByName(ctx context.Context, ownerID, username string) ([]*domain.User, error)

	// DeleteUser removes a user record. Sessions are left untouched.
	DeleteUser(ctx context.Context, ownerID, userID string) error

	// CreateSession assigns an ID, stamps the login instant and inserts an open session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// FindSessions returns sessions matching the filter.
	FindSessions(ctx context.Context, filter SessionFilter) ([]*domain.Session, error)

	// ReopenSession marks a closed session open again and clears its logout instant.
	ReopenSession(ctx context.Context, sessionID string) error

	// CloseSession marks a session closed and stamps its logout instant.
	CloseSession(ctx context.Context, sessionID string) error

	// Subscribe returns a channel of change notifications and a cancel func.
	// The channel is closed after cancel or Close.
	Subscribe() (<-chan Change, func())

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection and ends all subscriptions.
	Close() error
}

// Bool returns a pointer to b, for use in filters.
func Bool(b bool) *bool {
	return &b
}
