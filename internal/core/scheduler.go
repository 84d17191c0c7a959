package core

// scheduler.go runs periodic retention for finished jobs.
//
// Each cycle:
//  1. Drops finished jobs older than JobRetention from the in-memory registry
//  2. Purges persisted history and audit rows older than HistoryRetention
//
// The scheduler is long-running and stops with its context. A failed purge
// is logged and retried on the next cycle.

import (
	"context"
	"time"
)

// RetentionConfig holds configuration for the retention scheduler.
// Zero values select the defaults.
type RetentionConfig struct {
	JobRetention     time.Duration // finished jobs kept in memory (default: 24h)
	HistoryRetention time.Duration // persisted history kept (default: 90 days)
	CheckInterval    time.Duration // how often to run (default: 1h)
}

// Purger deletes persisted records older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func (cfg RetentionConfig) withDefaults() RetentionConfig {
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = 24 * time.Hour
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 90 * 24 * time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	return cfg
}

// StartRetentionScheduler prunes finished jobs and, when purger is non-nil,
// old history. It runs once immediately, then every CheckInterval, until ctx
// is cancelled.
func (c *Controller) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig, purger Purger) {
	cfg = cfg.withDefaults()
	c.log.Info("retention scheduler started",
		"job_retention", cfg.JobRetention,
		"history_retention", cfg.HistoryRetention,
		"interval", cfg.CheckInterval,
	)

	c.runRetention(ctx, cfg, purger)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			c.runRetention(ctx, cfg, purger)
		}
	}
}

// runRetention performs one prune and purge cycle.
func (c *Controller) runRetention(ctx context.Context, cfg RetentionConfig, purger Purger) {
	start := time.Now()

	if n := c.PruneFinished(cfg.JobRetention); n > 0 {
		c.log.Info("pruned finished jobs", "jobs_pruned", n)
	}

	if purger != nil {
		purged, err := purger.PurgeBefore(ctx, time.Now().Add(-cfg.HistoryRetention))
		if err != nil {
			c.log.Error("history purge failed", "error", err)
		} else if purged > 0 {
			c.log.Info("purged history entries", "entries_purged", purged)
		}
	}

	c.log.Debug("retention cycle completed", "duration_ms", time.Since(start).Milliseconds())
}
