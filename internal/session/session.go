// Package session tracks bot-side streaming sessions, one per requester.
package session

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a bot-side session.
type State string

const (
	StateCreated    State = "created"
	StateRequesting State = "requesting"
	StateActive     State = "active"
	StateStopping   State = "stopping"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state ends the session's lifecycle.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StreamSession is a user-visible record of one streaming request.
type StreamSession struct {
	SessionID   string
	RequesterID string
	GuildID     string
	ChannelID   string
	ChannelName string
	URL         string
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ErrorMsg    string
	AgentStatus string
}

func newSession(requesterID, guildID, channelID, channelName, url string) *StreamSession {
	now := time.Now().UTC()
	return &StreamSession{
		SessionID:   uuid.NewString(),
		RequesterID: requesterID,
		GuildID:     guildID,
		ChannelID:   channelID,
		ChannelName: channelName,
		URL:         url,
		State:       StateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// clone returns a copy so callers never share the manager's internal state.
func (s *StreamSession) clone() *StreamSession {
	c := *s
	return &c
}
