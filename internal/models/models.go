// Package models holds the wire types shared by the bot and the agent.
package models

import "time"

// StreamStatus is the status of a streaming session as reported by the agent.
type StreamStatus string

const (
	StatusPending       StreamStatus = "pending"
	StatusStarting      StreamStatus = "starting"
	StatusLoggingIn     StreamStatus = "logging_in"
	StatusJoiningVoice  StreamStatus = "joining_voice"
	StatusOpeningURL    StreamStatus = "opening_url"
	StatusSharingScreen StreamStatus = "sharing_screen"
	StatusStreaming     StreamStatus = "streaming"
	StatusStopping      StreamStatus = "stopping"
	StatusStopped       StreamStatus = "stopped"
	StatusFailed        StreamStatus = "failed"
)

var knownStatuses = map[StreamStatus]bool{
	StatusPending:       true,
	StatusStarting:      true,
	StatusLoggingIn:     true,
	StatusJoiningVoice:  true,
	StatusOpeningURL:    true,
	StatusSharingScreen: true,
	StatusStreaming:     true,
	StatusStopping:      true,
	StatusStopped:       true,
	StatusFailed:        true,
}

// ParseStreamStatus maps a wire string onto a StreamStatus.
func ParseStreamStatus(s string) (StreamStatus, bool) {
	status := StreamStatus(s)
	return status, knownStatuses[status]
}

// StreamRequest asks the controller to start a stream.
type StreamRequest struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	GuildID     string `json:"guild_id"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	RequesterID string `json:"requester_id"`
	WebhookURL  string `json:"webhook_url,omitempty"`
}

// StreamResponse is the controller's reply to start and stop requests.
type StreamResponse struct {
	SessionID string       `json:"session_id"`
	Status    StreamStatus `json:"status"`
	Message   string       `json:"message"`
}

// StopRequest asks the controller to stop a stream.
type StopRequest struct {
	SessionID   string `json:"session_id"`
	RequesterID string `json:"requester_id"`
}

// StatusUpdate is pushed by the agent to the bot's webhook as the workflow
// progresses.
type StatusUpdate struct {
	SessionID string         `json:"session_id"`
	Status    StreamStatus   `json:"status"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	ErrorCode string         `json:"error_code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthResponse reports process health with rolled-up stream counters.
type HealthResponse struct {
	Status             string   `json:"status"`
	Version            string   `json:"version"`
	ActiveSessions     int      `json:"active_sessions"`
	UptimeSeconds      *float64 `json:"uptime_seconds,omitempty"`
	StreamsTotal       *int64   `json:"streams_total,omitempty"`
	StreamsSuccess     *int64   `json:"streams_success,omitempty"`
	StreamsFailed      *int64   `json:"streams_failed,omitempty"`
	SuccessRatePercent *float64 `json:"success_rate_percent,omitempty"`
}
