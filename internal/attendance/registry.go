package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/studyhub/internal/domain"
	"github.com/ashureev/studyhub/internal/store"
)

// AddUser registers a username for ownerID. Names are trimmed and must be
// unique per owner (exact match). Uniqueness is checked before the insert,
// not enforced by the store.
func (s *Service) AddUser(ctx context.Context, ownerID, name string) (*domain.User, error) {
	name = domain.NormalizeUsername(name)
	if name == "" {
		return nil, fmt.Errorf("%w: please enter a username", domain.ErrValidation)
	}

	existing, err := s.repo.FindUsersByName(ctx, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: user '%s' already exists", domain.ErrValidation, name)
	}

	user := &domain.User{OwnerID: ownerID, Username: name}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User added", "owner_id", ownerID, "user_id", user.ID, "username", name)
	return user, nil
}

// RemoveUser deletes a user and force-closes its open sessions. Forced
// closures produce no payment summary. Open sessions of an already deleted
// user are still swept, so a retry after a partial failure completes the
// cleanup; ErrNotFound is reported only when there was nothing to close.
func (s *Service) RemoveUser(ctx context.Context, ownerID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: please select a user to remove", domain.ErrValidation)
	}

	deleteErr := s.repo.DeleteUser(ctx, ownerID, userID)
	if deleteErr != nil && !errors.Is(deleteErr, domain.ErrNotFound) {
		return fmt.Errorf("delete user: %w", deleteErr)
	}

	open, err := s.repo.FindSessions(ctx, store.SessionFilter{UserID: userID, Open: store.Bool(true)})
	if err != nil {
		return fmt.Errorf("find open sessions: %w", err)
	}
	closed, err := s.forceClose(ctx, open)

	if deleteErr != nil {
		if closed == 0 && err == nil {
			return fmt.Errorf("delete user: %w", deleteErr)
		}
		s.logger.Warn("Closed sessions of a removed user", "user_id", userID, "sessions_closed", closed)
		return err
	}

	s.logger.Info("User removed", "owner_id", ownerID, "user_id", userID, "sessions_closed", closed)
	return err
}

// RemoveAllResult counts what RemoveAllUsers changed.
type RemoveAllResult struct {
	UsersDeleted   int `json:"users_deleted"`
	SessionsClosed int `json:"sessions_closed"`
}

// RemoveAllUsers deletes every user of ownerID and force-closes every open
// session in the store.
func (s *Service) RemoveAllUsers(ctx context.Context, ownerID string) (RemoveAllResult, error) {
	var result RemoveAllResult

	users, err := s.repo.ListUsers(ctx, ownerID)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}

	var errs []error
	for _, user := range users {
		if err := s.repo.DeleteUser(ctx, ownerID, user.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete user %s: %w", user.ID, err))
			continue
		}
		result.UsersDeleted++
	}

	// The sweep runs even when some deletes failed.
	open, err := s.repo.FindSessions(ctx, store.SessionFilter{Open: store.Bool(true)})
	if err != nil {
		errs = append(errs, fmt.Errorf("find open sessions: %w", err))
		return result, errors.Join(errs...)
	}
	result.SessionsClosed, err = s.forceClose(ctx, open)
	if err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("All users removed",
		"owner_id", ownerID,
		"users_deleted", result.UsersDeleted,
		"sessions_closed", result.SessionsClosed)
	return result, errors.Join(errs...)
}

func (s *Service) forceClose(ctx context.Context, sessions []*domain.Session) (int, error) {
	closed := 0
	var errs []error
	for _, sess := range sessions {
		if err := s.repo.CloseSession(ctx, sess.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("close session %s: %w", sess.ID, err))
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}
