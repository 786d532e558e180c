package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/studyhub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginCreatesFreshSession(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)

	res, err := svc.Login(ctx, user)
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.True(t, res.Session.IsOpen())
	assert.True(t, res.Session.LoginTime.Equal(clock.Now()))
	assert.Equal(t, "Alice", res.Session.Username)
	assert.Len(t, openSessionsFor(t, repo, user.ID), 1)
}

func TestLoginTwiceIsRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)

	_, err = svc.Login(ctx, user)
	require.NoError(t, err)

	_, err = svc.Login(ctx, user)
	assert.ErrorIs(t, err, domain.ErrAlreadyLoggedIn)
	assert.Len(t, openSessionsFor(t, repo, user.ID), 1)
}

func TestLoginWithoutUserIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), &domain.User{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLoginThenLogoutProducesSummary(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)
	res, err := svc.Login(ctx, user)
	require.NoError(t, err)

	clock.Advance(61*time.Minute + 5*time.Second)

	summary, err := svc.Logout(ctx, res.Session)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "Alice", summary.Username)
	assert.Equal(t, "1h 1m 5s", summary.Duration)
	assert.Equal(t, int64(40), summary.Payment)
	assert.Empty(t, openSessionsFor(t, repo, user.ID))
}

func TestImmediateLogoutIsNotNegative(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)
	res, err := svc.Login(ctx, user)
	require.NoError(t, err)

	summary, err := svc.Logout(ctx, res.Session)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.Payment, int64(0))
	assert.Equal(t, "0h 0m 0s", summary.Duration)
}

func TestLogoutWithoutIDIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)

	summary, err := svc.Logout(context.Background(), &domain.Session{})
	assert.NoError(t, err)
	assert.Nil(t, summary)

	summary, err = svc.Logout(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, summary)
}

func TestLoginResumePreservesLoginTime(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)

	t0 := clock.Now()
	first, err := svc.Login(ctx, user)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = svc.Logout(ctx, first.Session)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	resumed, err := svc.Login(ctx, user)
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, first.Session.ID, resumed.Session.ID)
	assert.True(t, resumed.Session.LoginTime.Equal(t0))

	clock.Advance(10 * time.Minute)
	summary, err := svc.Logout(ctx, resumed.Session)
	require.NoError(t, err)
	assert.Equal(t, "2h 40m 0s", summary.Duration, "elapsed is measured from the original login")
	assert.Equal(t, int64(60), summary.Payment, "2h40m from the original login bills three hours")

	stored, err := repo.GetSession(ctx, first.Session.ID)
	require.NoError(t, err)
	assert.True(t, stored.LoginTime.Equal(t0))
}

func TestLoginResumesMostRecentClosedSession(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)

	older := &domain.Session{UserID: user.ID, Username: user.Username}
	require.NoError(t, repo.CreateSession(ctx, older))
	require.NoError(t, repo.CloseSession(ctx, older.ID))

	clock.Advance(time.Hour)
	newer := &domain.Session{UserID: user.ID, Username: user.Username}
	require.NoError(t, repo.CreateSession(ctx, newer))
	clock.Advance(time.Minute)
	require.NoError(t, repo.CloseSession(ctx, newer.ID))

	res, err := svc.Login(ctx, user)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, newer.ID, res.Session.ID)

	open := openSessionsFor(t, repo, user.ID)
	require.Len(t, open, 1)
	assert.Equal(t, newer.ID, open[0].ID)
}

func TestLoginStoreFailure(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)

	broken := NewService(&failingRepo{Repository: repo, failCreateSession: true}, WithLogger(svc.logger))
	_, err = broken.Login(ctx, user)
	assert.ErrorIs(t, err, errInjected)
	assert.Empty(t, openSessionsFor(t, repo, user.ID))

	broken = NewService(&failingRepo{Repository: repo, failFind: true}, WithLogger(svc.logger))
	_, err = broken.Login(ctx, user)
	assert.ErrorIs(t, err, errInjected)
}

func TestLogoutStoreFailureProducesNoSummary(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.AddUser(ctx, owner, "Alice")
	require.NoError(t, err)
	res, err := svc.Login(ctx, user)
	require.NoError(t, err)

	broken := NewService(&failingRepo{Repository: repo, failClose: true}, WithLogger(svc.logger))
	summary, err := broken.Logout(ctx, res.Session)
	assert.ErrorIs(t, err, errInjected)
	assert.Nil(t, summary)
	assert.Len(t, openSessionsFor(t, repo, user.ID), 1)
}

func TestLatestClosed(t *testing.T) {
	at := func(min int) *time.Time {
		ts := time.Date(2025, 1, 1, 10, min, 0, 0, time.UTC)
		return &ts
	}

	tests := []struct {
		name     string
		sessions []*domain.Session
		want     string
	}{
		{"empty", nil, ""},
		{"only open", []*domain.Session{{ID: "a", Open: true}}, ""},
		{"missing logout instant", []*domain.Session{{ID: "a"}}, ""},
		{"latest logout wins", []*domain.Session{
			{ID: "a", LogoutTime: at(5)},
			{ID: "b", LogoutTime: at(9)},
			{ID: "c", LogoutTime: at(7)},
		}, "b"},
		{"tie broken by id", []*domain.Session{
			{ID: "a", LogoutTime: at(5)},
			{ID: "c", LogoutTime: at(5)},
			{ID: "b", LogoutTime: at(5)},
		}, "c"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := LatestClosed(tc.sessions)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.ID)
		})
	}
}
