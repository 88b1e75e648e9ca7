package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/deepc0py/Jamie/internal/config"
	"github.com/deepc0py/Jamie/internal/errs"
	"github.com/deepc0py/Jamie/internal/metrics"
	"github.com/deepc0py/Jamie/internal/models"
)

// Version is stamped into health responses.
var Version = "0.1.0"

// Controller is the HTTP front of the automation agent. It accepts stream
// requests, runs one Streamer per session in the background, and exposes
// health, metrics, and session listings.
type Controller struct {
	cfg     *config.AgentConfig
	obs     *config.ObsConfig
	sandbox SandboxRunner
	engines EngineFactory
	metrics *metrics.Collector

	mu      sync.Mutex
	agents  map[string]*Streamer
	cancels map[string]context.CancelFunc
}

// NewController wires the controller.
func NewController(cfg *config.AgentConfig, obs *config.ObsConfig, sandbox SandboxRunner, engines EngineFactory, collector *metrics.Collector) *Controller {
	return &Controller{
		cfg:     cfg,
		obs:     obs,
		sandbox: sandbox,
		engines: engines,
		metrics: collector,
		agents:  make(map[string]*Streamer),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Router builds the controller's HTTP routes.
func (c *Controller) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Post("/stream", c.handleStartStream)
	r.Post("/stop/{sessionID}", c.handleStopStream)
	r.Get("/health", c.handleHealth)
	r.Get("/metrics", c.handleMetrics)
	r.Get("/stats", c.handleStats)
	r.Get("/sessions", c.handleSessions)
	return r
}

// ActiveCount returns the number of live runs.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.agents)
}

// StopAll stops every live run, used during shutdown.
func (c *Controller) StopAll() {
	c.mu.Lock()
	agents := make([]*Streamer, 0, len(c.agents))
	for _, a := range c.agents {
		agents = append(agents, a)
	}
	c.mu.Unlock()

	for _, a := range agents {
		a.Stop()
	}
}

func (c *Controller) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req models.StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if problems := req.Validate(); len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation failed",
			"details": problems,
		})
		return
	}

	reporter := NewReporter(req.WebhookURL)
	reporter.OnStatus(func(status string) {
		c.metrics.StreamStatusChanged(req.SessionID, status)
	})

	streamer := NewStreamer(Context{
		SessionID:       req.SessionID,
		URL:             req.URL,
		GuildID:         req.GuildID,
		ChannelID:       req.ChannelID,
		ChannelName:     req.ChannelName,
		DiscordEmail:    c.cfg.DiscordEmail,
		DiscordPassword: c.cfg.DiscordPassword,
		MaxBudget:       c.cfg.MaxBudgetPerSession,
		MaxIterations:   c.cfg.MaxIterations,
		StartTimeout:    c.cfg.StartTimeout,
		PollInterval:    c.cfg.PollInterval,
	}, c.sandbox, c.engines, reporter)

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if _, exists := c.agents[req.SessionID]; exists {
		c.mu.Unlock()
		cancel()
		writeError(w, http.StatusConflict, "session already exists")
		return
	}
	c.agents[req.SessionID] = streamer
	c.cancels[req.SessionID] = cancel
	c.mu.Unlock()

	c.metrics.StreamStarted(req.SessionID)

	go func() {
		defer cancel()
		err := streamer.Run(runCtx)

		// Whoever removes the session records its completion; a user stop
		// already did both.
		if c.remove(req.SessionID) {
			if err != nil {
				c.metrics.StreamCompleted(req.SessionID, false, string(errs.AsError(err).Code))
			} else {
				c.metrics.StreamCompleted(req.SessionID, true, "")
			}
		}
	}()

	slog.Info("stream accepted", "session_id", req.SessionID, "url", req.URL)

	writeJSON(w, http.StatusOK, models.StreamResponse{
		SessionID: req.SessionID,
		Status:    models.StatusPending,
		Message:   "Stream request accepted",
	})
}

func (c *Controller) handleStopStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	c.mu.Lock()
	streamer, ok := c.agents[sessionID]
	cancel := c.cancels[sessionID]
	if ok {
		delete(c.agents, sessionID)
		delete(c.cancels, sessionID)
	}
	c.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	streamer.Stop()
	if cancel != nil {
		// Give the run a moment to wind down gracefully before forcing it.
		time.AfterFunc(3*time.Minute, cancel)
	}

	// A user-initiated stop is a successful stream.
	c.metrics.StreamCompleted(sessionID, true, "")

	slog.Info("stream stopped by request", "session_id", sessionID)

	writeJSON(w, http.StatusOK, models.StreamResponse{
		SessionID: sessionID,
		Status:    models.StatusStopped,
		Message:   "Stream stopped",
	})
}

func (c *Controller) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := c.metrics.Snapshot()
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:             "healthy",
		Version:            Version,
		ActiveSessions:     c.ActiveCount(),
		UptimeSeconds:      &snap.UptimeSeconds,
		StreamsTotal:       &snap.Streams.Total,
		StreamsSuccess:     &snap.Streams.Success,
		StreamsFailed:      &snap.Streams.Failed,
		SuccessRatePercent: &snap.Streams.SuccessRatePercent,
	})
}

func (c *Controller) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !c.obs.MetricsEnabled {
		writeError(w, http.StatusNotFound, "metrics endpoint disabled")
		return
	}
	c.metrics.Handler().ServeHTTP(w, r)
}

func (c *Controller) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.metrics.Snapshot())
}

func (c *Controller) handleSessions(w http.ResponseWriter, r *http.Request) {
	type sessionInfo struct {
		SessionID string    `json:"session_id"`
		State     State     `json:"state"`
		Cost      float64   `json:"cost"`
		StartedAt time.Time `json:"started_at"`
	}

	c.mu.Lock()
	sessions := make([]sessionInfo, 0, len(c.agents))
	for id, a := range c.agents {
		sessions = append(sessions, sessionInfo{
			SessionID: id,
			State:     a.State(),
			Cost:      a.Cost(),
			StartedAt: a.StartedAt(),
		})
	}
	c.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// remove deregisters a session, reporting whether it was still present.
func (c *Controller) remove(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.agents[sessionID]
	if ok {
		delete(c.agents, sessionID)
		delete(c.cancels, sessionID)
	}
	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
