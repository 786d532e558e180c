// Package api provides HTTP handlers for the Study Hub API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/studyhub/internal/attendance"
	"github.com/ashureev/studyhub/internal/domain"
	"github.com/ashureev/studyhub/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	svc  *attendance.Service

	// summaries holds the last payment summary per admin until dismissed.
	summaries *summaryStore
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, svc *attendance.Service) *Handler {
	return &Handler{
		repo:      repo,
		svc:       svc,
		summaries: newSummaryStore(maxHeldSummaries),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyLoggedIn):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail reports err as a status message. Server-side failures are logged.
func fail(w http.ResponseWriter, err error, message string, args ...any) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(message, append(args, "error", err)...)
	} else {
		slog.Info(message, append(args, "error", err)...)
	}
	Error(w, status, message+": "+err.Error())
}
