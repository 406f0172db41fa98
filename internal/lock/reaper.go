package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/laces/genesis/internal/domain"
)

// Reaper periodically asks SQL for locks a client stopped heartbeating or
// whose TTL lapsed outright, marks their shadow rows inactive, and deletes
// the corresponding KV entry — the grace window covers a client that's
// merely slow to heartbeat, not one that's gone for good. Ticker-based,
// same start/stop shape as every other background loop in this codebase.
type Reaper struct {
	manager  *Manager
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewReaper(manager *Manager, interval, grace time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		manager:  manager,
		interval: interval,
		grace:    grace,
		logger:   logger.With("component", "lock-reaper"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the reaper in a background goroutine. Non-blocking.
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
	r.logger.Info("lock reaper started", "interval", r.interval, "grace", r.grace)
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("lock reaper stopped (context cancelled)")
			return
		case <-r.stopCh:
			r.logger.Info("lock reaper stopped (explicit stop)")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep asks SQL for every lock whose heartbeat_at+grace or expires_at has
// lapsed, marks each one inactive, and drops its KV record. A missing
// Postgres repository (tests, or a deployment that opted out of the shadow
// table) leaves the KV TTL as the only reaping mechanism, same as before
// this repository-backed sweep existed.
func (r *Reaper) sweep(ctx context.Context) {
	if r.manager.repo == nil {
		return
	}

	stale, err := r.manager.repo.StaleLocks(ctx, time.Now(), r.grace)
	if err != nil {
		r.logger.Error("failed to list stale locks", "error", err)
		return
	}

	reaped := 0
	for _, l := range stale {
		if err := r.manager.repo.MarkInactive(ctx, l.ID); err != nil {
			r.logger.Error("failed to mark lock inactive", "lock_id", l.ID, "error", err)
			continue
		}
		if err := r.dropFromKV(ctx, l); err != nil {
			r.logger.Error("failed to drop stale lock from KV", "lock_id", l.ID, "twin_id", l.TwinID, "error", err)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		r.manager.metrics.ReapedTotal.Add(float64(reaped))
		r.logger.Info("lock reaper sweep complete", "reaped", reaped)
	}
}

// dropFromKV removes l from its twin's KV record, and drops the twin from
// the active-twins set once its record is empty.
func (r *Reaper) dropFromKV(ctx context.Context, l domain.EditLock) error {
	key := recordKey(l.TwinID)
	empty := false

	err := r.manager.kv.WatchUpdate(ctx, key, r.manager.ttl, func(current string) (string, error) {
		record, err := decodeRecord(current)
		if err != nil {
			return "", err
		}
		delete(record, l.ID)
		empty = len(record) == 0
		return encodeRecord(record)
	})
	if err != nil {
		return err
	}

	if empty {
		if err := r.manager.kv.SRem(ctx, activeTwinsSetKey, l.TwinID); err != nil {
			r.logger.Warn("failed to drop empty twin from active-locks set", "twin_id", l.TwinID, "error", err)
		}
	}
	return nil
}

// Stop gracefully stops the reaper. Safe to call at most once.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}
