package core

// scheduler.go runs the rejection retention job. It purges database
// rejection records older than the configured number of days, once at
// start and then every CheckInterval, until the context is cancelled.
// A failed run is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/batchgate/internal/config"
)

// Purger deletes stored rejections older than a number of days.
// *diagnostics.PostgresSink satisfies it.
type Purger interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// StartRetentionScheduler blocks running the purge job until ctx ends.
// Call it in its own goroutine. Non-positive Days disables purging.
func StartRetentionScheduler(ctx context.Context, p Purger, cfg config.RetentionConfig) {
	if p == nil || cfg.Days <= 0 {
		slog.Info("retention scheduler disabled")
		return
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	slog.Info("retention scheduler started",
		"retention_days", cfg.Days,
		"interval", interval.String(),
	)

	runRetentionJob(ctx, p, cfg.Days)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			runRetentionJob(ctx, p, cfg.Days)
		}
	}
}

// runRetentionJob performs one purge.
func runRetentionJob(ctx context.Context, p Purger, days int) {
	start := time.Now()

	purged, err := p.PurgeOlderThan(ctx, days)
	if err != nil {
		slog.Error("rejection purge failed", "error", err)
		return
	}
	slog.Info("purged old rejection records",
		"records_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
