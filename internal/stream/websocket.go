package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/studyhub/internal/identity"
	"github.com/ashureev/studyhub/internal/live"
	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Second

// WebSocketHandler streams dashboard views.
type WebSocketHandler struct {
	feed           *live.Feed
	cm             *ConnManager
	allowedOrigins []string
	isDev          bool
	viewOpts       []live.ViewOption
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(feed *live.Feed, cm *ConnManager, allowedOrigins []string, isDev bool, opts ...live.ViewOption) *WebSocketHandler {
	return &WebSocketHandler{
		feed:           feed,
		cm:             cm,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		viewOpts:       opts,
	}
}

// wsMessage is a client to server frame.
type wsMessage struct {
	Type string `json:"type"`
}

// viewFrame is a server to client frame carrying one view.
type viewFrame struct {
	Type string `json:"type"`
	live.View
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	adminID := identity.AdminIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "admin_id", adminID, "tab_id", tabID, "ip", r.RemoteAddr)

	if adminID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "admin_id", adminID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "dashboard closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "admin_id", adminID)
		}
	}()

	h.cm.Register(adminID, tabID, ws)
	defer h.cm.Unregister(adminID, tabID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	vm := live.NewViewModel(h.feed.Subscribe(ctx, adminID), h.viewOpts...)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		defer cancel()
		if err := vm.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Live view stopped", "error", err, "admin_id", adminID)
		}
	}()

	// Input loop: client frames.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, adminID)
	}()

	// Output loop: views -> client.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, vm, adminID)
	}()

	wg.Wait()
	slog.Info("Dashboard stream ended", "admin_id", adminID, "tab_id", tabID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, adminID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed", "admin_id", adminID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "admin_id", adminID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("Ignoring malformed frame", "error", err, "admin_id", adminID)
			continue
		}

		switch msg.Type {
		case "ping":
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "close":
			return
		}
	}
}

func (h *WebSocketHandler) outputLoop(ctx context.Context, ws *websocket.Conn, vm *live.ViewModel, adminID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-vm.Views():
			if err := h.writeJSON(ctx, ws, viewFrame{Type: "view", View: v}); err != nil {
				if ctx.Err() == nil {
					slog.Warn("WebSocket write error", "error", err, "admin_id", adminID)
				}
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
