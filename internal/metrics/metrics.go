// Package metrics collects in-memory operational metrics for Jamie.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// windowSize bounds the rolling window used for latency percentiles.
const windowSize = 1000

// StreamRecord tracks one stream session's lifetime inside the collector.
type StreamRecord struct {
	SessionID     string
	StartedAt     time.Time
	EndedAt       time.Time
	Success       bool
	ErrorCode     string
	StatusHistory []string
}

// Collector is a thread-safe metrics collector tracking stream counts,
// latency and per-code error counts.
type Collector struct {
	mu        sync.Mutex
	startedAt time.Time

	streamsTotal   int64
	streamsSuccess int64
	streamsFailed  int64

	active      map[string]*StreamRecord
	durations   []float64 // seconds, rolling window
	errorCounts map[string]int64
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{
		startedAt:   time.Now(),
		active:      make(map[string]*StreamRecord),
		errorCounts: make(map[string]int64),
	}
}

// StreamStarted records a stream starting.
func (c *Collector) StreamStarted(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamsTotal++
	c.active[sessionID] = &StreamRecord{
		SessionID: sessionID,
		StartedAt: time.Now(),
	}
}

// StreamStatusChanged appends a status to a stream's history.
func (c *Collector) StreamStatusChanged(sessionID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.active[sessionID]; ok {
		rec.StatusHistory = append(rec.StatusHistory, status)
	}
}

// StreamCompleted records a stream completing. Streams whose start was not
// tracked still count toward the completion totals.
func (c *Collector) StreamCompleted(sessionID string, success bool, errorCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, tracked := c.active[sessionID]
	if tracked {
		delete(c.active, sessionID)
	} else {
		rec = &StreamRecord{SessionID: sessionID}
	}
	rec.EndedAt = time.Now()
	rec.Success = success
	rec.ErrorCode = errorCode

	if success {
		c.streamsSuccess++
	} else {
		c.streamsFailed++
		if errorCode != "" {
			c.errorCounts[errorCode]++
		}
	}

	// Without a tracked start there is no real duration to sample; recording
	// a near-zero value would skew the percentiles.
	if tracked {
		c.durations = append(c.durations, rec.EndedAt.Sub(rec.StartedAt).Seconds())
		if len(c.durations) > windowSize {
			c.durations = c.durations[len(c.durations)-windowSize:]
		}
	}
}

// ActiveCount returns the number of streams currently in flight.
func (c *Collector) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Latency summarizes the rolling latency window.
type Latency struct {
	Avg float64  `json:"avg"`
	P50 *float64 `json:"p50"`
	P95 *float64 `json:"p95"`
	P99 *float64 `json:"p99"`
}

// Streams summarizes stream counters.
type Streams struct {
	Total              int64   `json:"total"`
	Active             int     `json:"active"`
	Success            int64   `json:"success"`
	Failed             int64   `json:"failed"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

// Stats is a point-in-time snapshot of the collector.
type Stats struct {
	UptimeSeconds  float64          `json:"uptime_seconds"`
	Streams        Streams          `json:"streams"`
	LatencySeconds Latency          `json:"latency_seconds"`
	Errors         map[string]int64 `json:"errors"`
	ActiveSessions []string         `json:"active_sessions"`
}

// Snapshot returns the current stats.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	completed := c.streamsSuccess + c.streamsFailed
	successRate := 0.0
	if completed > 0 {
		successRate = float64(c.streamsSuccess) / float64(completed) * 100
	}

	sorted := make([]float64, len(c.durations))
	copy(sorted, c.durations)
	sort.Float64s(sorted)

	avg := 0.0
	for _, d := range sorted {
		avg += d
	}
	if len(sorted) > 0 {
		avg /= float64(len(sorted))
	}

	errCounts := make(map[string]int64, len(c.errorCounts))
	for code, n := range c.errorCounts {
		errCounts[code] = n
	}

	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return Stats{
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		Streams: Streams{
			Total:              c.streamsTotal,
			Active:             len(c.active),
			Success:            c.streamsSuccess,
			Failed:             c.streamsFailed,
			SuccessRatePercent: successRate,
		},
		LatencySeconds: Latency{
			Avg: avg,
			P50: percentile(sorted, 50),
			P95: percentile(sorted, 95),
			P99: percentile(sorted, 99),
		},
		Errors:         errCounts,
		ActiveSessions: ids,
	}
}

func percentile(sorted []float64, p int) *float64 {
	if len(sorted) == 0 {
		return nil
	}
	k := float64(len(sorted)-1) * float64(p) / 100
	f := int(k)
	c := f
	if f+1 < len(sorted) {
		c = f + 1
	}
	v := sorted[f] + (sorted[c]-sorted[f])*(k-float64(f))
	return &v
}

// WriteProm writes the collector's state in the Prometheus text exposition
// format.
func (c *Collector) WriteProm(sb *strings.Builder) {
	stats := c.Snapshot()

	sb.WriteString("# HELP jamie_uptime_seconds Time since service started\n")
	sb.WriteString("# TYPE jamie_uptime_seconds gauge\n")
	fmt.Fprintf(sb, "jamie_uptime_seconds %.2f\n\n", stats.UptimeSeconds)

	sb.WriteString("# HELP jamie_streams_total Total number of streams started\n")
	sb.WriteString("# TYPE jamie_streams_total counter\n")
	fmt.Fprintf(sb, "jamie_streams_total %d\n\n", stats.Streams.Total)

	sb.WriteString("# HELP jamie_streams_active Currently active streams\n")
	sb.WriteString("# TYPE jamie_streams_active gauge\n")
	fmt.Fprintf(sb, "jamie_streams_active %d\n\n", stats.Streams.Active)

	sb.WriteString("# HELP jamie_streams_success_total Successful streams\n")
	sb.WriteString("# TYPE jamie_streams_success_total counter\n")
	fmt.Fprintf(sb, "jamie_streams_success_total %d\n\n", stats.Streams.Success)

	sb.WriteString("# HELP jamie_streams_failed_total Failed streams\n")
	sb.WriteString("# TYPE jamie_streams_failed_total counter\n")
	fmt.Fprintf(sb, "jamie_streams_failed_total %d\n", stats.Streams.Failed)

	sb.WriteString("\n# HELP jamie_stream_duration_seconds Stream duration\n")
	sb.WriteString("# TYPE jamie_stream_duration_seconds summary\n")
	if stats.LatencySeconds.P50 != nil {
		fmt.Fprintf(sb, "jamie_stream_duration_seconds{quantile=\"0.5\"} %.3f\n", *stats.LatencySeconds.P50)
	}
	if stats.LatencySeconds.P95 != nil {
		fmt.Fprintf(sb, "jamie_stream_duration_seconds{quantile=\"0.95\"} %.3f\n", *stats.LatencySeconds.P95)
	}
	if stats.LatencySeconds.P99 != nil {
		fmt.Fprintf(sb, "jamie_stream_duration_seconds{quantile=\"0.99\"} %.3f\n", *stats.LatencySeconds.P99)
	}

	if len(stats.Errors) > 0 {
		sb.WriteString("\n# HELP jamie_errors_total Errors by code\n")
		sb.WriteString("# TYPE jamie_errors_total counter\n")
		codes := make([]string, 0, len(stats.Errors))
		for code := range stats.Errors {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintf(sb, "jamie_errors_total{code=%q} %d\n", code, stats.Errors[code])
		}
	}
}

// Handler serves the Prometheus exposition over HTTP.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		var sb strings.Builder
		c.WriteProm(&sb)
		_, _ = w.Write([]byte(sb.String()))
	})
}
