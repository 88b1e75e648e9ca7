// Package bot implements the Discord-facing front end: DM command routing,
// the status webhook receiver, and user notifications.
package bot

import (
	"context"

	"github.com/deepc0py/Jamie/internal/models"
)

// VoiceLocation identifies the voice channel a user currently occupies.
type VoiceLocation struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
}

// VoiceLocator finds which voice channel a user is in across shared guilds.
type VoiceLocator interface {
	// Locate returns nil when the user is not in any visible voice channel.
	Locate(ctx context.Context, userID string) (*VoiceLocation, error)
}

// Messenger delivers DMs to users.
type Messenger interface {
	DM(ctx context.Context, userID, text string) error
}

// StreamController is the subset of the controller client the handler needs.
type StreamController interface {
	StartStream(ctx context.Context, req *models.StreamRequest) (*models.StreamResponse, error)
	StopStream(ctx context.Context, sessionID, requesterID string) (*models.StreamResponse, error)
}
