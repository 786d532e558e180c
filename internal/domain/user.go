// Package domain contains core domain types for the Study Hub attendance service.
package domain

import (
	"strings"
	"time"
)

// User is a registered study hub member. Users are scoped to the admin
// identity that created them.
type User struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeUsername trims surrounding whitespace from a candidate username.
func NormalizeUsername(name string) string {
	return strings.TrimSpace(name)
}
