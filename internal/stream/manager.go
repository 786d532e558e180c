// Package stream pushes live dashboard views to browsers over WebSocket.
package stream

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks active dashboard connections per admin and browser tab.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for an admin and tab.
func (m *ConnManager) GetActive(adminID, tabID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabs, ok := m.active[adminID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Register adds a connection. An older connection of the same tab is closed.
func (m *ConnManager) Register(adminID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[adminID]; !exists {
		m.active[adminID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[adminID][tabID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "dashboard replaced")
	}

	m.active[adminID][tabID] = conn
	slog.Info("Dashboard connection registered", "admin_id", adminID, "tab_id", tabID)
}

// Unregister removes a connection if it is still the current one of its tab.
func (m *ConnManager) Unregister(adminID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[adminID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, adminID)
			}
			slog.Info("Dashboard connection unregistered", "admin_id", adminID, "tab_id", tabID)
		}
	}
}

// Count returns the number of registered connections.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}

// CloseAll terminates every connection. Used on shutdown.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for adminID, tabs := range m.active {
		for tabID, conn := range tabs {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Dashboard connection closed", "admin_id", adminID, "tab_id", tabID)
		}
	}
	m.active = make(map[string]map[string]*websocket.Conn)
}
