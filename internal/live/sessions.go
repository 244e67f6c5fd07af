package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mindcure-agent/internal/browser"
	"github.com/ashureev/mindcure-agent/internal/scores"
	"github.com/ashureev/mindcure-agent/internal/tools"
	"github.com/coder/websocket"
)

// State is the per-session state shared with the HTTP API.
type State struct {
	SessionID string
	UserID    string
	StartedAt time.Time
	Scores    *scores.Board
	Tracker   *browser.Tracker
	Tools     *tools.Registry

	conn *websocket.Conn
}

// Sessions tracks active live sessions by session ID (the room name).
type Sessions struct {
	mu     sync.RWMutex
	active map[string]*State
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{active: make(map[string]*State)}
}

// Get returns the active session, or nil.
func (m *Sessions) Get(sessionID string) *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// Len returns the number of active sessions.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Register adds a session. A previous connection for the same session is closed.
func (m *Sessions) Register(s *State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[s.SessionID]; ok && existing != s && existing.conn != nil {
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.active[s.SessionID] = s
	slog.Info("Live session registered", "user_id", s.UserID, "session_id", s.SessionID)
}

// Unregister removes s if it is still the registered session for its ID.
func (m *Sessions) Unregister(s *State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[s.SessionID]; ok && current == s {
		delete(m.active, s.SessionID)
		slog.Info("Live session unregistered", "user_id", s.UserID, "session_id", s.SessionID)
	}
}

// CloseAll terminates every active session.
func (m *Sessions) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.active {
		if s.conn != nil {
			_ = s.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(m.active, id)
	}
}
