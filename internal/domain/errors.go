package domain

import "errors"

var (
	// ErrValidation reports bad admin input. No store mutation is attempted.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyLoggedIn is returned by login when the user has an open session.
	ErrAlreadyLoggedIn = errors.New("already logged in")

	// ErrNotFound is returned when a user or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps store failures caused by connectivity or locking.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrStoreWrite wraps any other rejected store write.
	ErrStoreWrite = errors.New("store write failed")

	// ErrSubscription marks an error delivered through a live subscription.
	ErrSubscription = errors.New("subscription error")
)
