package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgres creates a PostgreSQL-backed repository.
func NewPostgres(connStr string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, dialectPostgres, opts)
}

// Open selects a backend by driver name.
func Open(driver, sqlitePath, postgresURL string, opts ...Option) (Repository, error) {
	var (
		s   *SQLStore
		err error
	)
	switch driver {
	case "", "sqlite":
		s, err = NewSQLite(sqlitePath, opts...)
	case "postgres":
		s, err = NewPostgres(postgresURL, opts...)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
