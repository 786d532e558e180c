// Package attendance implements the session lifecycle and the user registry.
package attendance

import (
	"log/slog"
	"time"

	"github.com/ashureev/studyhub/internal/store"
)

// Service opens and closes billable sessions and manages registered users.
// It holds no state besides its collaborators; every call is a single
// attempt against the store.
type Service struct {
	repo   store.Repository
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the local clock used for payment summaries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a new attendance service.
func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
