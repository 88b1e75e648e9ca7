// Package store provides persistence for the stream history archive.
package store

import (
	"context"
	"time"
)

// StreamRecord is one archived streaming session.
type StreamRecord struct {
	SessionID   string    `json:"session_id"`
	RequesterID string    `json:"requester_id"`
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	URL         string    `json:"url"`
	FinalState  string    `json:"final_state"`
	ErrorMsg    string    `json:"error_msg,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// Repository defines the interface for persisting ended streams.
type Repository interface {
	// RecordStream archives an ended streaming session.
	RecordStream(ctx context.Context, rec *StreamRecord) error

	// RecentStreams returns the most recently ended streams, newest first.
	RecentStreams(ctx context.Context, limit int) ([]*StreamRecord, error)

	// CountByState returns archived stream counts grouped by final state.
	CountByState(ctx context.Context) (map[string]int64, error)

	// PruneOlderThan removes archived streams that ended before the cutoff.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
