package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/deepc0py/Jamie/internal/middleware"
	"github.com/deepc0py/Jamie/internal/models"
	"github.com/deepc0py/Jamie/internal/store"
)

// StatusCallback processes a validated status update.
type StatusCallback func(ctx context.Context, update *models.StatusUpdate) error

// Receiver is the HTTP listener for agent status webhooks.
type Receiver struct {
	callback StatusCallback
	feed     *StatusFeed      // optional
	archive  store.Repository // optional
	srv      *http.Server
}

// NewReceiver builds the webhook listener. feed and archive may be nil.
func NewReceiver(host, port string, callback StatusCallback, feed *StatusFeed, archive store.Repository) *Receiver {
	rcv := &Receiver{callback: callback, feed: feed, archive: archive}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Post("/webhook/status", rcv.handleStatus)
	r.Get("/health", rcv.handleHealth)
	if feed != nil {
		// Browser dashboards poll the feed cross-origin.
		r.With(middleware.CORS([]string{"*"})).Get("/ws/status", feed.ServeHTTP)
	}
	if archive != nil {
		r.Get("/history", rcv.handleHistory)
	}

	rcv.srv = &http.Server{
		Addr:         net.JoinHostPort(host, port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket feed connections stay open
		IdleTimeout:  120 * time.Second,
	}
	return rcv
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (rcv *Receiver) Start() error {
	slog.Info("webhook receiver listening", "addr", rcv.srv.Addr)
	if err := rcv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook receiver: %w", err)
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (rcv *Receiver) Shutdown(ctx context.Context) error {
	if rcv.feed != nil {
		rcv.feed.CloseAll()
	}
	return rcv.srv.Shutdown(ctx)
}

// handleStatus validates and dispatches one status update. Malformed or
// unknown payloads get a 400; a callback failure is logged but still
// acknowledged so the agent does not retry a delivered update.
func (rcv *Receiver) handleStatus(w http.ResponseWriter, r *http.Request) {
	var update models.StatusUpdate
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "malformed JSON body",
		})
		return
	}
	if err := update.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	slog.Info("status update received",
		"session_id", update.SessionID,
		"status", update.Status,
		"error_code", update.ErrorCode)

	if rcv.callback != nil {
		if err := rcv.callback(r.Context(), &update); err != nil {
			slog.Error("status callback failed",
				"session_id", update.SessionID,
				"error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHistory lists recently ended streams from the archive.
func (rcv *Receiver) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	records, err := rcv.archive.RecentStreams(r.Context(), limit)
	if err != nil {
		slog.Error("failed to load stream history", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "history unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"streams": records,
	})
}

func (rcv *Receiver) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// Version is stamped into health responses.
var Version = "0.1.0"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
