package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/deepc0py/Jamie/internal/models"
)

// StatusFeed broadcasts status updates to websocket subscribers. Dashboards
// and operators can watch stream progress live without polling.
type StatusFeed struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewStatusFeed creates an empty feed.
func NewStatusFeed() *StatusFeed {
	return &StatusFeed{
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection subscribed until
// the client disconnects.
func (f *StatusFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept status feed connection", "error", err)
		return
	}

	f.register(ws)
	defer f.unregister(ws)

	slog.Info("status feed subscriber connected", "ip", r.RemoteAddr)

	// Subscribers only listen. Read until the peer closes so we notice the
	// disconnect.
	ctx := r.Context()
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("status feed subscriber disconnected")
			} else {
				slog.Debug("status feed read error", "error", err)
			}
			return
		}
	}
}

// Broadcast sends an update to every subscriber. Connections that fail to
// accept the write are dropped.
func (f *StatusFeed) Broadcast(update *models.StatusUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		slog.Error("failed to encode status update for feed", "error", err)
		return
	}

	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			slog.Debug("dropping slow status feed subscriber", "error", err)
			f.unregister(c)
			_ = c.Close(websocket.StatusPolicyViolation, "write timeout")
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (f *StatusFeed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// CloseAll disconnects every subscriber, used during shutdown.
func (f *StatusFeed) CloseAll() {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.conns = make(map[*websocket.Conn]struct{})
	f.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusNormalClosure, "server shutting down")
	}
}

func (f *StatusFeed) register(c *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[c] = struct{}{}
}

func (f *StatusFeed) unregister(c *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, c)
}
