package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deepc0py/Jamie/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS stream_history (
		session_id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		channel_name TEXT NOT NULL,
		url TEXT NOT NULL,
		final_state TEXT NOT NULL,
		error_msg TEXT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stream_history_ended ON stream_history(ended_at);
	CREATE INDEX IF NOT EXISTS idx_stream_history_requester ON stream_history(requester_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordStream archives an ended streaming session. Writes retry on
// SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) RecordStream(ctx context.Context, rec *StreamRecord) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lastErr = s.recordStreamOnce(ctx, rec)
		if lastErr == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(lastErr) {
			if i < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
				slog.Debug("RecordStream failed with SQLITE_BUSY, retrying",
					"session_id", rec.SessionID,
					"attempt", i+1,
					"delay", delay)
				time.Sleep(delay)
				continue
			}
		}
		break
	}

	return fmt.Errorf("record stream %s: %w", rec.SessionID, lastErr)
}

func (s *SQLiteStore) recordStreamOnce(ctx context.Context, rec *StreamRecord) error {
	query := `
	INSERT INTO stream_history (
		session_id, requester_id, guild_id, channel_id, channel_name,
		url, final_state, error_msg, started_at, ended_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		final_state = excluded.final_state,
		error_msg = excluded.error_msg,
		ended_at = excluded.ended_at`

	var errMsg interface{}
	if rec.ErrorMsg != "" {
		errMsg = rec.ErrorMsg
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.RequesterID, rec.GuildID, rec.ChannelID, rec.ChannelName,
		rec.URL, rec.FinalState, errMsg,
		rec.StartedAt.Unix(), rec.EndedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert stream record: %w", err)
	}
	return nil
}

// RecentStreams returns the most recently ended streams, newest first.
func (s *SQLiteStore) RecentStreams(ctx context.Context, limit int) ([]*StreamRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT session_id, requester_id, guild_id, channel_id, channel_name,
		       url, final_state, error_msg, started_at, ended_at
		FROM stream_history ORDER BY ended_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent streams: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent streams rows", "error", closeErr)
		}
	}()

	var records []*StreamRecord
	for rows.Next() {
		var rec StreamRecord
		var errMsg sql.NullString
		var startedAt, endedAt int64

		if err := rows.Scan(
			&rec.SessionID, &rec.RequesterID, &rec.GuildID, &rec.ChannelID, &rec.ChannelName,
			&rec.URL, &rec.FinalState, &errMsg, &startedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stream record: %w", err)
		}

		rec.ErrorMsg = errMsg.String
		rec.StartedAt = time.Unix(startedAt, 0)
		rec.EndedAt = time.Unix(endedAt, 0)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent streams: %w", err)
	}

	return records, nil
}

// CountByState returns archived stream counts grouped by final state.
func (s *SQLiteStore) CountByState(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT final_state, COUNT(*) FROM stream_history GROUP BY final_state`)
	if err != nil {
		return nil, fmt.Errorf("query counts by state: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close count rows", "error", closeErr)
		}
	}()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[state] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}

	return counts, nil
}

// PruneOlderThan removes archived streams that ended before the cutoff.
func (s *SQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stream_history WHERE ended_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune stream history: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
