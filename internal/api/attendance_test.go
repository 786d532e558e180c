package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/studyhub/internal/attendance"
	"github.com/ashureev/studyhub/internal/domain"
	"github.com/ashureev/studyhub/internal/identity"
	"github.com/ashureev/studyhub/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin = "admin_0123456789abcdef0123456789abcdef"

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

type testServer struct {
	router http.Handler
	repo   *store.SQLStore
	clock  *fakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "studyhub.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := attendance.NewService(repo,
		attendance.WithClock(clock.Now),
		attendance.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithAdminID(req.Context(), testAdmin)))
		})
	})
	NewHandler(repo, svc).RegisterRoutes(r)
	NewHealthHandler(repo, time.Second).RegisterHealth(r)

	return &testServer{router: r, repo: repo, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]json.RawMessage{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (s *testServer) addUser(t *testing.T, name string) *domain.User {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/users", map[string]string{"username": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*domain.User](t, body["user"])
}

func TestGetMe(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/api/me", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testAdmin, decode[string](t, body["admin_id"]))
}

func TestAddUser(t *testing.T) {
	s := newTestServer(t)

	user := s.addUser(t, "  Alice ")
	assert.Equal(t, "Alice", user.Username)

	w, body := s.do(t, http.MethodPost, "/api/users", map[string]string{"username": "Alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[string](t, body["error"]), "user 'Alice' already exists")

	w, _ = s.do(t, http.MethodPost, "/api/users", map[string]string{"username": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*domain.User](t, body["users"]), 1)
}

func TestAddUser_InvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginLogoutFlow(t *testing.T) {
	s := newTestServer(t)
	user := s.addUser(t, "Bob")

	w, body := s.do(t, http.MethodPost, "/api/users/"+user.ID+"/login", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[bool](t, body["resumed"]))
	assert.Equal(t, "Bob logged in.", decode[string](t, body["message"]))
	session := decode[*domain.Session](t, body["session"])

	w, _ = s.do(t, http.MethodPost, "/api/users/"+user.ID+"/login", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*domain.Session](t, body["sessions"]), 1)

	s.clock.Advance(time.Hour + time.Minute + 5*time.Second)

	w, body = s.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/logout", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[*domain.PaymentSummary](t, body["payment"])
	assert.Equal(t, "1h 1m 5s", summary.Duration)
	assert.Equal(t, int64(40), summary.Payment)

	w, body = s.do(t, http.MethodGet, "/api/payment-summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bob", decode[*domain.PaymentSummary](t, body["payment"]).Username)

	w, _ = s.do(t, http.MethodDelete, "/api/payment-summary", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/payment-summary", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/logout", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/users/"+user.ID+"/login", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[bool](t, body["resumed"]))
	assert.Equal(t, "Bob session continued.", decode[string](t, body["message"]))
	assert.Equal(t, session.ID, decode[*domain.Session](t, body["session"]).ID)
}

func TestLogin_UnknownUser(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/users/missing/login", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogout_UnknownSession(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/sessions/missing/logout", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveUser_ClosesOpenSession(t *testing.T) {
	s := newTestServer(t)
	user := s.addUser(t, "Carol")

	w, _ := s.do(t, http.MethodPost, "/api/users/"+user.ID+"/login", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/users/"+user.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	open, err := s.repo.FindSessions(context.Background(), store.SessionFilter{Open: store.Bool(true)})
	require.NoError(t, err)
	assert.Empty(t, open)

	w, _ = s.do(t, http.MethodDelete, "/api/users/"+user.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveAllUsers_RequiresConfirm(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "Dan")

	w, _ := s.do(t, http.MethodDelete, "/api/users", nil)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	users, err := s.repo.ListUsers(context.Background(), testAdmin)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRemoveAllUsers(t *testing.T) {
	s := newTestServer(t)
	a := s.addUser(t, "Eve")
	s.addUser(t, "Frank")

	w, _ := s.do(t, http.MethodPost, "/api/users/"+a.ID+"/login", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodDelete, "/api/users?confirm=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[attendance.RemoveAllResult](t, body["result"])
	assert.Equal(t, 2, result.UsersDeleted)
	assert.Equal(t, 1, result.SessionsClosed)

	w, body = s.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]*domain.User](t, body["users"]))
}

func TestGetView(t *testing.T) {
	s := newTestServer(t)
	a := s.addUser(t, "Gina")
	s.addUser(t, "Hal")

	w, _ := s.do(t, http.MethodPost, "/api/users/"+a.ID+"/login", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodGet, "/api/view", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rows []struct {
		Username string `json:"username"`
		LoggedIn bool   `json:"logged_in"`
	}
	require.NoError(t, json.Unmarshal(body["rows"], &rows))
	require.Len(t, rows, 2)

	loggedIn := map[string]bool{}
	for _, r := range rows {
		loggedIn[r.Username] = r.LoggedIn
	}
	assert.Equal(t, map[string]bool{"Gina": true, "Hal": false}, loggedIn)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[string](t, body["status"]))

	require.NoError(t, s.repo.Close())

	w, body = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode[string](t, body["status"]))
}
