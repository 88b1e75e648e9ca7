package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "jamie.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func testRecord(sessionID, state string, endedAt time.Time) *StreamRecord {
	return &StreamRecord{
		SessionID:   sessionID,
		RequesterID: "111111111111111111",
		GuildID:     "222222222222222222",
		ChannelID:   "333333333333333333",
		ChannelName: "movie-night",
		URL:         "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		FinalState:  state,
		StartedAt:   endedAt.Add(-10 * time.Minute),
		EndedAt:     endedAt,
	}
}

func TestRecordAndRecentStreams(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	if err := repo.RecordStream(ctx, testRecord("a", "completed", now.Add(-time.Hour))); err != nil {
		t.Fatalf("RecordStream failed: %v", err)
	}
	rec := testRecord("b", "failed", now)
	rec.ErrorMsg = "login failed"
	if err := repo.RecordStream(ctx, rec); err != nil {
		t.Fatalf("RecordStream failed: %v", err)
	}

	records, err := repo.RecentStreams(ctx, 10)
	if err != nil {
		t.Fatalf("RecentStreams failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].SessionID != "b" {
		t.Errorf("Expected newest record first, got %s", records[0].SessionID)
	}
	if records[0].ErrorMsg != "login failed" {
		t.Errorf("ErrorMsg = %q", records[0].ErrorMsg)
	}
	if records[1].ErrorMsg != "" {
		t.Errorf("Expected empty ErrorMsg, got %q", records[1].ErrorMsg)
	}
}

func TestRecordStreamUpsert(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	if err := repo.RecordStream(ctx, testRecord("a", "failed", now)); err != nil {
		t.Fatalf("RecordStream failed: %v", err)
	}
	if err := repo.RecordStream(ctx, testRecord("a", "completed", now.Add(time.Minute))); err != nil {
		t.Fatalf("RecordStream upsert failed: %v", err)
	}

	records, err := repo.RecentStreams(ctx, 10)
	if err != nil {
		t.Fatalf("RecentStreams failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after upsert, got %d", len(records))
	}
	if records[0].FinalState != "completed" {
		t.Errorf("FinalState = %q, want completed", records[0].FinalState)
	}
}

func TestCountByState(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for i, state := range []string{"completed", "completed", "failed"} {
		rec := testRecord(string(rune('a'+i)), state, now)
		if err := repo.RecordStream(ctx, rec); err != nil {
			t.Fatalf("RecordStream failed: %v", err)
		}
	}

	counts, err := repo.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState failed: %v", err)
	}
	if counts["completed"] != 2 || counts["failed"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestPruneOlderThan(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	if err := repo.RecordStream(ctx, testRecord("old", "completed", now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("RecordStream failed: %v", err)
	}
	if err := repo.RecordStream(ctx, testRecord("new", "completed", now)); err != nil {
		t.Fatalf("RecordStream failed: %v", err)
	}

	pruned, err := repo.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Pruned %d records, want 1", pruned)
	}

	records, err := repo.RecentStreams(ctx, 10)
	if err != nil {
		t.Fatalf("RecentStreams failed: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "new" {
		t.Errorf("Unexpected survivors: %v", records)
	}
}
