package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/deepc0py/Jamie/internal/errs"
)

// Manager tracks active streaming sessions and enforces one non-terminal
// session per requester. All operations are safe under concurrent callers;
// no I/O happens while the lock is held.
type Manager struct {
	mu           sync.Mutex
	sessions     map[string]*StreamSession
	userSessions map[string]string // requester id -> session id
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions:     make(map[string]*StreamSession),
		userSessions: make(map[string]string),
	}
}

// Create registers a new session for a requester. It fails with
// ALREADY_STREAMING if the requester's tracked session is still live; a
// stale terminal mapping is cleared instead.
func (m *Manager) Create(requesterID, guildID, channelID, channelName, url string) (*StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.userSessions[requesterID]; ok {
		if existing, ok := m.sessions[existingID]; ok && !existing.State.Terminal() {
			return nil, errs.Newf(errs.CodeAlreadyStreaming,
				"user %s already has an active session: %s", requesterID, existingID)
		}
		delete(m.userSessions, requesterID)
	}

	s := newSession(requesterID, guildID, channelID, channelName, url)
	m.sessions[s.SessionID] = s
	m.userSessions[requesterID] = s.SessionID

	slog.Info("session created",
		"session_id", s.SessionID,
		"requester_id", requesterID,
		"channel", channelName)
	return s.clone(), nil
}

// Get returns a session by id, nil if unknown. Terminal sessions stay
// retrievable by id until removed or swept.
func (m *Manager) Get(sessionID string) *StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s.clone()
	}
	return nil
}

// GetForUser returns the requester's current session, treating terminal
// sessions as logically absent without deleting them.
func (m *Manager) GetForUser(requesterID string) *StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, ok := m.userSessions[requesterID]
	if !ok {
		return nil
	}
	s, ok := m.sessions[sessionID]
	if !ok || s.State.Terminal() {
		return nil
	}
	return s.clone()
}

// Update sets a session's state, optionally recording an error message and
// the agent's last reported status. Returns false for unknown ids.
func (m *Manager) Update(sessionID string, state State, errMsg, agentStatus string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	s.State = state
	s.UpdatedAt = time.Now().UTC()
	if errMsg != "" {
		s.ErrorMsg = errMsg
	}
	if agentStatus != "" {
		s.AgentStatus = agentStatus
	}
	return true
}

// Remove deletes a session from both mappings. Returns whether it existed.
func (m *Manager) Remove(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	delete(m.sessions, sessionID)
	if m.userSessions[s.RequesterID] == sessionID {
		delete(m.userSessions, s.RequesterID)
	}
	return true
}

// Active returns every non-terminal session.
func (m *Manager) Active() []*StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []*StreamSession
	for _, s := range m.sessions {
		if !s.State.Terminal() {
			active = append(active, s.clone())
		}
	}
	return active
}

// Sweep removes terminal sessions whose last update is older than maxAge and
// returns them. Non-terminal sessions are never swept regardless of age.
func (m *Manager) Sweep(maxAge time.Duration) []*StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var swept []*StreamSession
	for id, s := range m.sessions {
		if !s.State.Terminal() {
			continue
		}
		if now.Sub(s.UpdatedAt) <= maxAge {
			continue
		}
		delete(m.sessions, id)
		if m.userSessions[s.RequesterID] == id {
			delete(m.userSessions, s.RequesterID)
		}
		swept = append(swept, s)
	}
	return swept
}
