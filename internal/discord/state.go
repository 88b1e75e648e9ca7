package discord

import (
	"context"
	"sync"

	"github.com/deepc0py/Jamie/internal/bot"
)

// State is the gateway's cache of guilds, channel names, and voice states.
// It answers "which voice channel is this user in" for the DM handler.
type State struct {
	mu     sync.RWMutex
	guilds map[string]*guildState
}

type guildState struct {
	name     string
	channels map[string]string // channel ID -> name
	voice    map[string]string // user ID -> channel ID
}

// NewState creates an empty cache.
func NewState() *State {
	return &State{guilds: make(map[string]*guildState)}
}

// Locate finds the voice channel a user currently occupies, or nil when the
// user is not in voice in any shared guild.
func (s *State) Locate(ctx context.Context, userID string) (*bot.VoiceLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for guildID, g := range s.guilds {
		channelID, ok := g.voice[userID]
		if !ok || channelID == "" {
			continue
		}
		return &bot.VoiceLocation{
			GuildID:     guildID,
			GuildName:   g.name,
			ChannelID:   channelID,
			ChannelName: g.channels[channelID],
		}, nil
	}
	return nil, nil
}

// GuildCount returns the number of cached guilds.
func (s *State) GuildCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guilds)
}

func (s *State) applyGuild(guildID, name string, channels map[string]string, voice map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[guildID] = &guildState{
		name:     name,
		channels: channels,
		voice:    voice,
	}
}

func (s *State) removeGuild(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, guildID)
}

func (s *State) setChannelName(guildID, channelID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guilds[guildID]; ok {
		g.channels[channelID] = name
	}
}

func (s *State) removeChannel(guildID, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guilds[guildID]; ok {
		delete(g.channels, channelID)
	}
}

// setVoiceState records a user's voice channel; an empty channel ID means
// the user disconnected.
func (s *State) setVoiceState(guildID, userID, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return
	}
	if channelID == "" {
		delete(g.voice, userID)
		return
	}
	g.voice[userID] = channelID
}
