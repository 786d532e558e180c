package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ashureev/studyhub/internal/identity"
	"github.com/ashureev/studyhub/internal/live"
	"github.com/ashureev/studyhub/internal/store"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers attendance routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/view", h.GetView)

		r.Get("/users", h.ListUsers)
		r.Post("/users", h.AddUser)
		r.Delete("/users", h.RemoveAllUsers)
		r.Delete("/users/{userID}", h.RemoveUser)
		r.Post("/users/{userID}/login", h.Login)

		r.Get("/sessions", h.ListOpenSessions)
		r.Post("/sessions/{sessionID}/logout", h.Logout)

		r.Get("/payment-summary", h.GetPaymentSummary)
		r.Delete("/payment-summary", h.DismissPaymentSummary)
	})
}

// GetMe returns the current admin identity.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())
	if adminID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"admin_id": adminID,
		"message":  "Admin User ID: " + adminID,
	})
}

// ListUsers returns the registered users of the admin.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())

	users, err := h.repo.ListUsers(r.Context(), adminID)
	if err != nil {
		fail(w, err, "Error loading users", "admin_id", adminID)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

type addUserRequest struct {
	Username string `json:"username"`
}

// AddUser registers a new user.
func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())

	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.svc.AddUser(r.Context(), adminID, req.Username)
	if err != nil {
		fail(w, err, "Error adding user", "admin_id", adminID)
		return
	}
	JSON(w, http.StatusCreated, map[string]interface{}{
		"user":    user,
		"message": fmt.Sprintf("User '%s' added successfully!", user.Username),
	})
}

// RemoveUser deletes one user and force-closes their open session.
func (h *Handler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := h.svc.RemoveUser(r.Context(), adminID, userID); err != nil {
		fail(w, err, "Error removing user", "admin_id", adminID, "user_id", userID)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "User removed successfully!"})
}

// RemoveAllUsers deletes every user of the admin and closes all open
// sessions. The request must carry confirm=true.
func (h *Handler) RemoveAllUsers(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())

	if r.URL.Query().Get("confirm") != "true" {
		Error(w, http.StatusPreconditionRequired,
			"removing all users deletes every user and ends every active session; repeat with confirm=true")
		return
	}

	result, err := h.svc.RemoveAllUsers(r.Context(), adminID)
	if err != nil {
		fail(w, err, "Error removing all users", "admin_id", adminID)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"result":  result,
		"message": "All users and active sessions removed successfully!",
	})
}

// Login opens or resumes a session for a user.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	user, err := h.repo.GetUser(r.Context(), adminID, userID)
	if err != nil {
		fail(w, err, "Error logging in", "admin_id", adminID, "user_id", userID)
		return
	}

	res, err := h.svc.Login(r.Context(), user)
	if err != nil {
		fail(w, err, "Error logging in/continuing "+user.Username, "user_id", userID)
		return
	}

	message := user.Username + " logged in."
	if res.Resumed {
		message = user.Username + " session continued."
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session": res.Session,
		"resumed": res.Resumed,
		"message": message,
	})
}

// ListOpenSessions returns every open session.
func (h *Handler) ListOpenSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.FindSessions(r.Context(), store.SessionFilter{Open: store.Bool(true)})
	if err != nil {
		fail(w, err, "Error loading active sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Logout closes a session and returns its payment summary. The summary is
// also held for the admin until dismissed.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		fail(w, err, "Error logging out", "session_id", sessionID)
		return
	}
	if !session.IsOpen() {
		Error(w, http.StatusConflict, session.Username+" is not logged in.")
		return
	}

	summary, err := h.svc.Logout(r.Context(), session)
	if err != nil {
		fail(w, err, "Error logging out "+session.Username, "session_id", sessionID)
		return
	}
	h.summaries.Store(adminID, summary)

	JSON(w, http.StatusOK, map[string]interface{}{
		"payment": summary,
		"message": session.Username + " logged out.",
	})
}

// GetPaymentSummary returns the held payment summary, if any.
func (h *Handler) GetPaymentSummary(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())

	summary, ok := h.summaries.Load(adminID)
	if !ok {
		Error(w, http.StatusNotFound, "no payment summary")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"payment": summary})
}

// DismissPaymentSummary drops the held payment summary.
func (h *Handler) DismissPaymentSummary(w http.ResponseWriter, r *http.Request) {
	h.summaries.Delete(identity.AdminIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// GetView returns the joined users/sessions view computed now.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())

	users, err := h.repo.ListUsers(r.Context(), adminID)
	if err != nil {
		fail(w, err, "Error loading users", "admin_id", adminID)
		return
	}
	sessions, err := h.repo.FindSessions(r.Context(), store.SessionFilter{Open: store.Bool(true)})
	if err != nil {
		fail(w, err, "Error loading active sessions", "admin_id", adminID)
		return
	}

	now := time.Now()
	JSON(w, http.StatusOK, live.View{Rows: live.Join(users, sessions, now), UpdatedAt: now})
}
