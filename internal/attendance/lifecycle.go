package attendance

import (
	"context"
	"fmt"
	"sort"

	"github.com/ashureev/studyhub/internal/billing"
	"github.com/ashureev/studyhub/internal/domain"
	"github.com/ashureev/studyhub/internal/store"
)

// LoginResult reports which session a login opened.
type LoginResult struct {
	Session *domain.Session
	Resumed bool
}

// Login opens a session for user. The most recently closed session of the
// user is resumed when one exists, keeping its original login instant;
// otherwise a fresh session is created. The open-session check is not
// atomic with the write.
func (s *Service) Login(ctx context.Context, user *domain.User) (*LoginResult, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: no user selected", domain.ErrValidation)
	}

	open, err := s.repo.FindSessions(ctx, store.SessionFilter{UserID: user.ID, Open: store.Bool(true)})
	if err != nil {
		return nil, fmt.Errorf("check open sessions: %w", err)
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("%s: %w", user.Username, domain.ErrAlreadyLoggedIn)
	}

	closed, err := s.repo.FindSessions(ctx, store.SessionFilter{UserID: user.ID, Open: store.Bool(false)})
	if err != nil {
		return nil, fmt.Errorf("find closed sessions: %w", err)
	}

	if latest := LatestClosed(closed); latest != nil {
		if err := s.repo.ReopenSession(ctx, latest.ID); err != nil {
			return nil, fmt.Errorf("resume session: %w", err)
		}
		latest.Open = true
		latest.LogoutTime = nil

		s.logger.Info("Session resumed", "user_id", user.ID, "session_id", latest.ID, "login_time", latest.LoginTime)
		return &LoginResult{Session: latest, Resumed: true}, nil
	}

	session := &domain.Session{UserID: user.ID, Username: user.Username}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session opened", "user_id", user.ID, "session_id", session.ID)
	return &LoginResult{Session: session}, nil
}

// LatestClosed picks the closed session with the latest logout instant.
// Ties go to the greater session ID. Sessions without a logout instant are
// ignored.
func LatestClosed(sessions []*domain.Session) *domain.Session {
	candidates := make([]*domain.Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.LogoutTime != nil && !sess.Open {
			candidates = append(candidates, sess)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.LogoutTime.Equal(*b.LogoutTime) {
			return a.LogoutTime.After(*b.LogoutTime)
		}
		return a.ID > b.ID
	})
	return candidates[0]
}

// Logout closes session and returns its payment summary. The summary is
// measured from the session's login instant to the local clock reading
// taken after the write. A session without an ID is ignored.
func (s *Service) Logout(ctx context.Context, session *domain.Session) (*domain.PaymentSummary, error) {
	if session == nil || session.ID == "" {
		return nil, nil
	}

	if err := s.repo.CloseSession(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	logoutTime := s.now()

	bill := billing.Compute(session.LoginTime, logoutTime)
	summary := &domain.PaymentSummary{
		SessionID:  session.ID,
		Username:   session.Username,
		Duration:   billing.FormatDuration(bill.Elapsed),
		Payment:    bill.Payment,
		LoginTime:  session.LoginTime,
		LogoutTime: logoutTime,
	}

	s.logger.Info("Session closed",
		"user_id", session.UserID,
		"session_id", session.ID,
		"duration", summary.Duration,
		"payment", summary.Payment)
	return summary, nil
}
