package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deepc0py/Jamie/internal/models"
)

func newFlakyWebhook(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastReporter(url string) *Reporter {
	r := NewReporter(url)
	r.baseDelay = time.Millisecond
	return r
}

func TestReporterDeliversUpdate(t *testing.T) {
	var got models.StatusUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode failed: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := fastReporter(srv.URL).Report(context.Background(), "sess-1", "streaming", "live", "", map[string]any{"url": "https://example.com"})
	if !ok {
		t.Fatal("Report returned false")
	}
	if got.SessionID != "sess-1" || got.Status != models.StatusStreaming {
		t.Errorf("Delivered update = %+v", got)
	}
	if got.Details["url"] != "https://example.com" {
		t.Errorf("Details = %v", got.Details)
	}
}

func TestReporterRetriesThenSucceeds(t *testing.T) {
	srv, calls := newFlakyWebhook(t, 2)

	if ok := fastReporter(srv.URL).Report(context.Background(), "sess-1", "streaming", "", "", nil); !ok {
		t.Fatal("Report returned false after retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Webhook called %d times, want 3", got)
	}
}

func TestReporterGivesUpAfterMaxAttempts(t *testing.T) {
	srv, calls := newFlakyWebhook(t, 100)

	if ok := fastReporter(srv.URL).Report(context.Background(), "sess-1", "streaming", "", "", nil); ok {
		t.Fatal("Report should fail when every attempt is rejected")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Webhook called %d times, want 3", got)
	}
}

func TestReporterSendBudgetBoundsDelivery(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	r := fastReporter(srv.URL)
	r.sendBudget = 50 * time.Millisecond

	start := time.Now()
	if ok := r.Report(context.Background(), "sess-1", "streaming", "", "", nil); ok {
		t.Fatal("Report should fail when the webhook hangs past the budget")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Report took %v, want it bounded by the send budget", elapsed)
	}
}

func TestReporterNoWebhookConfigured(t *testing.T) {
	if ok := NewReporter("").Report(context.Background(), "sess-1", "streaming", "", "", nil); !ok {
		t.Error("Report with no webhook should trivially succeed")
	}
}

func TestReporterUnknownStatusFallsBackToStreaming(t *testing.T) {
	var got models.StatusUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fastReporter(srv.URL).Report(context.Background(), "sess-1", "doing_great", "", "", nil)
	if got.Status != models.StatusStreaming {
		t.Errorf("Status = %q, want streaming fallback", got.Status)
	}
}

func TestReporterNon200IsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Accepted-but-not-200 still counts as a failed delivery.
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if ok := fastReporter(srv.URL).Report(context.Background(), "sess-1", "streaming", "", "", nil); ok {
		t.Error("Report should require a 200 response")
	}
}
