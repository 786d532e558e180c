// Package identity provides the anonymous admin identity that scopes the
// user registry.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	AdminCookieName       = "studyhub_admin_id"
	TabHeaderName         = "X-Studyhub-Tab-ID"
	DefaultTabIDValue     = "default"
	adminCookieMaxAge     = 365 * 24 * time.Hour
	adminIDPrefix         = "admin_"
	adminIDRandomByteSize = 16
)

type contextKey int

const (
	adminIDKey contextKey = iota
	tabIDKey
)

var (
	adminIDPattern = regexp.MustCompile(`^admin_[a-f0-9]{32}$`)
	tabIDPattern   = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// AdminIDFromContext extracts the admin subject identifier from the request context.
func AdminIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(adminIDKey).(string); ok {
		return v
	}
	return ""
}

// TabIDFromContext extracts the browser tab ID from the request context.
func TabIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tabIDKey).(string); ok {
		return v
	}
	return DefaultTabIDValue
}

// WithAdminID returns a context carrying adminID.
func WithAdminID(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminIDKey, adminID)
}

func generateAdminID() (string, error) {
	buf := make([]byte, adminIDRandomByteSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate admin id: %w", err)
	}
	return adminIDPrefix + hex.EncodeToString(buf), nil
}

// IsValidAdminID reports whether id has the admin identifier shape.
func IsValidAdminID(id string) bool {
	return adminIDPattern.MatchString(id)
}

func sanitizeTabID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !tabIDPattern.MatchString(id) {
		return DefaultTabIDValue
	}
	return id
}

func setAdminCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(adminCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(adminCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAdminID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AdminCookieName); err == nil && IsValidAdminID(c.Value) {
		setAdminCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAdminID()
	if err != nil {
		return "", err
	}
	setAdminCookie(w, id, isDev)
	slog.Info("Issued admin identity", "admin_id", id, "ip", IPFromRequest(r))
	return id, nil
}

func tabIDFromRequest(r *http.Request) string {
	tab := r.Header.Get(TabHeaderName)
	if tab == "" {
		tab = r.URL.Query().Get("tab_id")
	}
	return sanitizeTabID(tab)
}

// Middleware injects the admin identity and per-request tab ID. The identity
// is only used as an ownership key; it is not an authentication mechanism.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adminID, err := getOrCreateAdminID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish admin identity"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithAdminID(r.Context(), adminID)
			ctx = context.WithValue(ctx, tabIDKey, tabIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
