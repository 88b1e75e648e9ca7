package session

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/deepc0py/Jamie/internal/errs"
)

const (
	testUser    = "111111111111111111"
	testGuild   = "222222222222222222"
	testChannel = "333333333333333333"
)

func createTestSession(t *testing.T, m *Manager, user string) *StreamSession {
	t.Helper()
	s, err := m.Create(user, testGuild, testChannel, "movie-night", "https://www.twitch.tv/examplechannel")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return s
}

func TestCreateEnforcesOnePerUser(t *testing.T) {
	m := NewManager()
	createTestSession(t, m, testUser)

	_, err := m.Create(testUser, testGuild, testChannel, "movie-night", "https://example.com/x")
	if err == nil {
		t.Fatal("Expected second create to fail with busy condition")
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != errs.CodeAlreadyStreaming {
		t.Errorf("Expected ALREADY_STREAMING, got %v", err)
	}
}

func TestCreateClearsStaleTerminalMapping(t *testing.T) {
	m := NewManager()
	first := createTestSession(t, m, testUser)

	if !m.Update(first.SessionID, StateFailed, "boom", "") {
		t.Fatal("Update returned false for known session")
	}

	second, err := m.Create(testUser, testGuild, testChannel, "movie-night", "https://example.com/x")
	if err != nil {
		t.Fatalf("Create after terminal transition failed: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Error("Expected a fresh session id")
	}
}

func TestTerminalSessionsInvisibleToUserLookup(t *testing.T) {
	m := NewManager()
	s := createTestSession(t, m, testUser)

	m.Update(s.SessionID, StateCompleted, "", "")

	if got := m.GetForUser(testUser); got != nil {
		t.Errorf("Expected nil for terminal session, got %+v", got)
	}
	// Still retrievable by id until removed or swept.
	if got := m.Get(s.SessionID); got == nil {
		t.Error("Expected Get by id to still return the terminal session")
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	m := NewManager()
	if m.Update("nope", StateActive, "", "") {
		t.Error("Expected Update to return false for unknown id")
	}
}

func TestUpdateRecordsErrorAndAgentStatus(t *testing.T) {
	m := NewManager()
	s := createTestSession(t, m, testUser)

	m.Update(s.SessionID, StateFailed, "login failed", "logging_in")
	got := m.Get(s.SessionID)
	if got.ErrorMsg != "login failed" {
		t.Errorf("ErrorMsg = %q", got.ErrorMsg)
	}
	if got.AgentStatus != "logging_in" {
		t.Errorf("AgentStatus = %q", got.AgentStatus)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("UpdatedAt not refreshed")
	}
}

func TestRemove(t *testing.T) {
	m := NewManager()
	s := createTestSession(t, m, testUser)

	if !m.Remove(s.SessionID) {
		t.Error("Expected Remove to report existence")
	}
	if m.Remove(s.SessionID) {
		t.Error("Expected second Remove to return false")
	}
	if m.Get(s.SessionID) != nil {
		t.Error("Session still retrievable after Remove")
	}
	// User mapping cleared too.
	if m.GetForUser(testUser) != nil {
		t.Error("User mapping survived Remove")
	}
}

func TestSweepOnlyRemovesOldTerminalSessions(t *testing.T) {
	m := NewManager()

	old := createTestSession(t, m, testUser)
	m.Update(old.SessionID, StateCompleted, "", "")
	// Backdate the update so it exceeds the age threshold.
	m.mu.Lock()
	m.sessions[old.SessionID].UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	m.mu.Unlock()

	fresh := createTestSession(t, m, "444444444444444444")
	m.Update(fresh.SessionID, StateFailed, "", "")

	ancient := createTestSession(t, m, "555555555555555555")
	m.mu.Lock()
	m.sessions[ancient.SessionID].UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	m.mu.Unlock()

	swept := m.Sweep(time.Hour)
	if len(swept) != 1 {
		t.Fatalf("Sweep removed %d sessions, want 1", len(swept))
	}
	if swept[0].SessionID != old.SessionID {
		t.Errorf("Swept wrong session: %s", swept[0].SessionID)
	}
	// Non-terminal sessions are never swept regardless of age.
	if m.Get(ancient.SessionID) == nil {
		t.Error("Sweep removed a non-terminal session")
	}
	if m.Get(fresh.SessionID) == nil {
		t.Error("Sweep removed a recent terminal session")
	}
}

func TestActive(t *testing.T) {
	m := NewManager()
	a := createTestSession(t, m, testUser)
	b := createTestSession(t, m, "444444444444444444")
	m.Update(b.SessionID, StateCompleted, "", "")

	active := m.Active()
	if len(active) != 1 || active[0].SessionID != a.SessionID {
		t.Errorf("Active = %v", active)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := "10000000000000000" + strconv.Itoa(n%10)
			s, err := m.Create(user, testGuild, testChannel, "vc", "https://example.com/x")
			if err != nil {
				m.GetForUser(user)
				return
			}
			m.Update(s.SessionID, StateActive, "", "streaming")
			m.Update(s.SessionID, StateCompleted, "", "")
			m.GetForUser(user)
		}(i)
	}
	wg.Wait()
}
