package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deepc0py/Jamie/internal/models"
)

// Reporter pushes status updates to the bot's webhook. Delivery is best
// effort: a few retries with exponential backoff, then the update is dropped
// with a log line. Losing an update must never fail the stream itself.
type Reporter struct {
	webhookURL  string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	sendBudget  time.Duration
	onStatus    func(status string)
}

// NewReporter creates a reporter for the given webhook URL. An empty URL
// disables reporting.
func NewReporter(webhookURL string) *Reporter {
	return &Reporter{
		webhookURL:  webhookURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
		baseDelay:   time.Second,
		sendBudget:  30 * time.Second,
	}
}

// OnStatus registers an observer invoked for every reported status,
// delivered or not.
func (r *Reporter) OnStatus(fn func(status string)) {
	r.onStatus = fn
}

// Report sends one status update. Unknown status strings degrade to
// "streaming" rather than dropping the update. Returns whether delivery
// succeeded; with no webhook configured it trivially succeeds.
func (r *Reporter) Report(ctx context.Context, sessionID, status, message, errorCode string, details map[string]any) bool {
	if r.onStatus != nil {
		r.onStatus(status)
	}
	if r.webhookURL == "" {
		slog.Debug("no webhook configured, skipping report", "session_id", sessionID, "status", status)
		return true
	}

	streamStatus, ok := models.ParseStreamStatus(status)
	if !ok {
		streamStatus = models.StatusStreaming
	}

	update := models.StatusUpdate{
		SessionID: sessionID,
		Status:    streamStatus,
		Message:   message,
		Timestamp: time.Now().UTC(),
		ErrorCode: errorCode,
		Details:   details,
	}

	payload, err := json.Marshal(update)
	if err != nil {
		slog.Error("failed to encode status update", "session_id", sessionID, "error", err)
		return false
	}

	// One update gets the whole budget across all attempts and backoffs.
	ctx, cancel := context.WithTimeout(ctx, r.sendBudget)
	defer cancel()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if r.post(ctx, payload) {
			slog.Info("status update delivered",
				"session_id", sessionID,
				"status", streamStatus,
				"attempt", attempt)
			return true
		}

		if attempt < r.maxAttempts {
			// 1s, 2s between attempts.
			delay := r.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				slog.Warn("status report canceled", "session_id", sessionID, "status", streamStatus)
				return false
			}
		}
	}

	slog.Warn("dropping undeliverable status update",
		"session_id", sessionID,
		"status", streamStatus,
		"attempts", r.maxAttempts)
	return false
}

func (r *Reporter) post(ctx context.Context, payload []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(payload))
	if err != nil {
		slog.Error("failed to build webhook request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		slog.Warn("webhook delivery failed", "error", err)
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("webhook rejected status update", "status_code", resp.StatusCode)
		return false
	}
	return true
}
