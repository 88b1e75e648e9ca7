package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deepc0py/Jamie/internal/models"
	"github.com/deepc0py/Jamie/internal/store"
)

func postStatus(t *testing.T, rcv *Receiver, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rcv.srv.Handler.ServeHTTP(w, req)
	return w
}

func validUpdateBody(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(models.StatusUpdate{
		SessionID: "sess-1",
		Status:    models.StatusStreaming,
		Message:   "stream is live",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return string(b)
}

func TestWebhookDispatchesValidUpdate(t *testing.T) {
	var received *models.StatusUpdate
	rcv := NewReceiver("127.0.0.1", "0", func(ctx context.Context, u *models.StatusUpdate) error {
		received = u
		return nil
	}, nil, nil)

	w := postStatus(t, rcv, validUpdateBody(t))

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if received == nil || received.SessionID != "sess-1" {
		t.Errorf("Callback received %+v", received)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["status"] != "ok" {
		t.Errorf("Body = %s", w.Body.String())
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	called := false
	rcv := NewReceiver("127.0.0.1", "0", func(ctx context.Context, u *models.StatusUpdate) error {
		called = true
		return nil
	}, nil, nil)

	w := postStatus(t, rcv, "{not json")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
	if called {
		t.Error("Callback should not run for malformed payloads")
	}
}

func TestWebhookRejectsUnknownStatus(t *testing.T) {
	rcv := NewReceiver("127.0.0.1", "0", nil, nil, nil)

	body, _ := json.Marshal(map[string]string{
		"session_id": "sess-1",
		"status":     "interpretive_dance",
	})
	w := postStatus(t, rcv, string(body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestWebhookRejectsMissingSessionID(t *testing.T) {
	rcv := NewReceiver("127.0.0.1", "0", nil, nil, nil)

	body, _ := json.Marshal(map[string]string{"status": "streaming"})
	w := postStatus(t, rcv, string(body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestWebhookCallbackErrorStillAcknowledged(t *testing.T) {
	rcv := NewReceiver("127.0.0.1", "0", func(ctx context.Context, u *models.StatusUpdate) error {
		return errors.New("downstream hiccup")
	}, nil, nil)

	w := postStatus(t, rcv, validUpdateBody(t))

	// A delivered update must not be retried by the agent.
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
}

func TestWebhookCallbackPanicRecovered(t *testing.T) {
	rcv := NewReceiver("127.0.0.1", "0", func(ctx context.Context, u *models.StatusUpdate) error {
		panic("boom")
	}, nil, nil)

	w := postStatus(t, rcv, validUpdateBody(t))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
}

func TestWebhookHealth(t *testing.T) {
	rcv := NewReceiver("127.0.0.1", "0", nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	rcv.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var health models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("health = %+v", health)
	}
}

func TestWebhookHistoryListsArchivedStreams(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "jamie.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer repo.Close()

	rec := &store.StreamRecord{
		SessionID:   "sess-1",
		RequesterID: "111111111111111111",
		GuildID:     "222222222222222222",
		ChannelID:   "333333333333333333",
		ChannelName: "movie-night",
		URL:         "https://example.com/v",
		FinalState:  "completed",
		StartedAt:   time.Now().Add(-time.Hour),
		EndedAt:     time.Now(),
	}
	if err := repo.RecordStream(context.Background(), rec); err != nil {
		t.Fatalf("RecordStream failed: %v", err)
	}

	rcv := NewReceiver("127.0.0.1", "0", nil, nil, repo)
	req := httptest.NewRequest(http.MethodGet, "/history?limit=5", nil)
	w := httptest.NewRecorder()
	rcv.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var listing struct {
		Count   int                   `json:"count"`
		Streams []*store.StreamRecord `json:"streams"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if listing.Count != 1 || listing.Streams[0].SessionID != "sess-1" {
		t.Errorf("Listing = %+v", listing)
	}
}

func TestWebhookHistoryDisabledWithoutArchive(t *testing.T) {
	rcv := NewReceiver("127.0.0.1", "0", nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	w := httptest.NewRecorder()
	rcv.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestWebhookIgnoresExtraFields(t *testing.T) {
	rcv := NewReceiver("127.0.0.1", "0", func(ctx context.Context, u *models.StatusUpdate) error {
		return nil
	}, nil, nil)

	var buf bytes.Buffer
	buf.WriteString(`{"session_id":"sess-1","status":"streaming","novelty":"surprise"}`)
	w := postStatus(t, rcv, buf.String())

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200: %s", w.Code, w.Body.String())
	}
}
