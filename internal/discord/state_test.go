package discord

import (
	"context"
	"testing"
)

func seededState() *State {
	s := NewState()
	s.applyGuild("g1", "Movie Club",
		map[string]string{"c1": "general-voice", "c2": "lounge"},
		map[string]string{"u1": "c1"},
	)
	s.applyGuild("g2", "Other Guild",
		map[string]string{"c3": "voice"},
		map[string]string{},
	)
	return s
}

func TestLocateFindsUserInVoice(t *testing.T) {
	s := seededState()

	loc, err := s.Locate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if loc == nil {
		t.Fatal("Expected a location")
	}
	if loc.GuildID != "g1" || loc.ChannelID != "c1" {
		t.Errorf("Location = %+v", loc)
	}
	if loc.GuildName != "Movie Club" || loc.ChannelName != "general-voice" {
		t.Errorf("Names = %q / %q", loc.GuildName, loc.ChannelName)
	}
}

func TestLocateUserNotInVoice(t *testing.T) {
	s := seededState()

	loc, err := s.Locate(context.Background(), "u2")
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if loc != nil {
		t.Errorf("Expected nil location, got %+v", loc)
	}
}

func TestVoiceStateUpdatesMoveAndDisconnect(t *testing.T) {
	s := seededState()

	s.setVoiceState("g1", "u1", "c2")
	loc, _ := s.Locate(context.Background(), "u1")
	if loc == nil || loc.ChannelID != "c2" || loc.ChannelName != "lounge" {
		t.Fatalf("After move, location = %+v", loc)
	}

	s.setVoiceState("g1", "u1", "")
	loc, _ = s.Locate(context.Background(), "u1")
	if loc != nil {
		t.Errorf("After disconnect, location = %+v", loc)
	}
}

func TestGuildRemovalDropsVoiceStates(t *testing.T) {
	s := seededState()
	s.removeGuild("g1")

	if loc, _ := s.Locate(context.Background(), "u1"); loc != nil {
		t.Errorf("Location survived guild removal: %+v", loc)
	}
	if s.GuildCount() != 1 {
		t.Errorf("GuildCount = %d, want 1", s.GuildCount())
	}
}

func TestVoiceStateForUnknownGuildIgnored(t *testing.T) {
	s := seededState()
	s.setVoiceState("ghost", "u9", "c9")

	if loc, _ := s.Locate(context.Background(), "u9"); loc != nil {
		t.Errorf("Unexpected location %+v", loc)
	}
}
