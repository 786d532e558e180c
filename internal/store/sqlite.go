package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/studyhub/internal/domain"
	"github.com/ashureev/studyhub/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithClock replaces the store clock used to stamp login and logout instants.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		s.now = now
	}
}

// SQLStore implements Repository on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
	changes *broadcaster
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, opts ...Option) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets the live feed read while admin actions write.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, dialectSQLite, opts)
}

func newSQLStore(db *sql.DB, d dialect, opts []Option) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		now:     time.Now,
		changes: newBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			username TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_owner_username ON users(owner_id, username)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			login_time BIGINT NOT NULL,
			is_open BOOLEAN NOT NULL,
			logout_time BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_open ON sessions(user_id, is_open)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(is_open)`,
	}
	if s.dialect == dialectSQLite {
		stmts = append([]string{`PRAGMA busy_timeout = 5000`}, stmts...)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into the driver's positional form.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) stamp() int64 {
	return s.now().UnixMilli()
}

// readErr and writeErr attach the domain error class to a driver error.
func readErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func writeErr(op string, err error) error {
	kind := domain.ErrStoreWrite
	if shared.IsUnavailableError(err) {
		kind = domain.ErrStoreUnavailable
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	s.changes.close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Subscribe registers for change notifications.
func (s *SQLStore) Subscribe() (<-chan Change, func()) {
	return s.changes.subscribe()
}

// CreateUser inserts a new user.
func (s *SQLStore) CreateUser(ctx context.Context, user *domain.User) error {
	user.ID = uuid.NewString()
	createdAt := s.stamp()

	query := s.rebind(`INSERT INTO users (id, owner_id, username, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.OwnerID, user.Username, createdAt); err != nil {
		return writeErr("insert user", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt)

	s.changes.publish(Change{Collection: CollectionUsers})
	return nil
}

const userColumns = `id, owner_id, username, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var createdAt int64
	if err := row.Scan(&user.ID, &user.OwnerID, &user.Username, &createdAt); err != nil {
		return nil, err
	}
	user.CreatedAt = time.UnixMilli(createdAt)
	return &user, nil
}

// GetUser retrieves a user by owner and ID.
func (s *SQLStore) GetUser(ctx context.Context, ownerID, userID string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE owner_id = ? AND id = ?`)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, ownerID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, readErr("scan user row", err)
	}
	return user, nil
}

// ListUsers returns all users of an owner.
func (s *SQLStore) ListUsers(ctx context.Context, ownerID string) ([]*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE owner_id = ? ORDER BY created_at, id`)
	return s.queryUsers(ctx, query, ownerID)
}

// FindUsersByName returns users of an owner with exactly this username.
func (s *SQLStore) FindUsersByName(ctx context.Context, ownerID, username string) ([]*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE owner_id = ? AND username = ? ORDER BY created_at, id`)
	return s.queryUsers(ctx, query, ownerID, username)
}

func (s *SQLStore) queryUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, readErr("query users", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user rows", "error", closeErr)
		}
	}()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, readErr("scan user row", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("iterate users", err)
	}
	return users, nil
}

// DeleteUser removes a user record.
func (s *SQLStore) DeleteUser(ctx context.Context, ownerID, userID string) error {
	query := s.rebind(`DELETE FROM users WHERE owner_id = ? AND id = ?`)
	result, err := s.db.ExecContext(ctx, query, ownerID, userID)
	if err != nil {
		return writeErr("delete user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return writeErr("get rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	s.changes.publish(Change{Collection: CollectionUsers})
	return nil
}

// CreateSession inserts a fresh open session.
func (s *SQLStore) CreateSession(ctx context.Context, session *domain.Session) error {
	session.ID = uuid.NewString()
	loginTime := s.stamp()

	query := s.rebind(`
		INSERT INTO sessions (id, user_id, username, login_time, is_open, logout_time)
		VALUES (?, ?, ?, ?, ?, NULL)`)
	if _, err := s.db.ExecContext(ctx, query, session.ID, session.UserID, session.Username, loginTime, true); err != nil {
		return writeErr("insert session", err)
	}

	session.LoginTime = time.UnixMilli(loginTime)
	session.Open = true
	session.LogoutTime = nil

	s.changes.publish(Change{Collection: CollectionSessions})
	return nil
}

const sessionColumns = `id, user_id, username, login_time, is_open, logout_time`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var session domain.Session
	var loginTime int64
	var logoutTime sql.NullInt64
	if err := row.Scan(&session.ID, &session.UserID, &session.Username, &loginTime, &session.Open, &logoutTime); err != nil {
		return nil, err
	}
	session.LoginTime = time.UnixMilli(loginTime)
	if logoutTime.Valid {
		ts := time.UnixMilli(logoutTime.Int64)
		session.LogoutTime = &ts
	}
	return &session, nil
}

// GetSession retrieves a session by ID.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, readErr("scan session row", err)
	}
	return session, nil
}

// FindSessions returns sessions matching filter, oldest login first.
func (s *SQLStore) FindSessions(ctx context.Context, filter SessionFilter) ([]*domain.Session, error) {
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Open != nil {
		where = append(where, "is_open = ?")
		args = append(args, *filter.Open)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY login_time, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, readErr("query sessions", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	sessions := []*domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, readErr("scan session row", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("iterate sessions", err)
	}
	return sessions, nil
}

// ReopenSession flips a session back to open. The login instant is kept.
func (s *SQLStore) ReopenSession(ctx context.Context, sessionID string) error {
	query := s.rebind(`UPDATE sessions SET is_open = ?, logout_time = NULL WHERE id = ?`)
	return s.updateSession(ctx, "reopen session", query, true, sessionID)
}

// CloseSession closes a session at the store clock.
func (s *SQLStore) CloseSession(ctx context.Context, sessionID string) error {
	query := s.rebind(`UPDATE sessions SET is_open = ?, logout_time = ? WHERE id = ?`)
	return s.updateSession(ctx, "close session", query, false, s.stamp(), sessionID)
}

func (s *SQLStore) updateSession(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return writeErr(op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return writeErr("get rows affected", err)
	}
	if rows == 0 {
		slog.Warn("Session update affected 0 rows", "op", op, "session_id", args[len(args)-1])
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}

	s.changes.publish(Change{Collection: CollectionSessions})
	return nil
}
