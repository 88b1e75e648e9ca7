package session

import (
	"context"
	"log/slog"
	"time"
)

// SweepCallback is invoked for each session removed by the sweeper, before
// the sweep cycle completes. Used to archive ended streams.
type SweepCallback func(s *StreamSession)

// StartSweeper runs a background goroutine that periodically removes stale
// terminal sessions. It stops when ctx is canceled.
func StartSweeper(ctx context.Context, mgr *Manager, interval, maxAge time.Duration, onSweep SweepCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("session sweeper started", "interval", interval, "max_age", maxAge)

		for {
			select {
			case <-ticker.C:
				swept := mgr.Sweep(maxAge)
				if len(swept) == 0 {
					continue
				}
				for _, s := range swept {
					if onSweep != nil {
						onSweep(s)
					}
				}
				slog.Info("session sweeper removed stale sessions", "count", len(swept))
			case <-ctx.Done():
				slog.Info("session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
