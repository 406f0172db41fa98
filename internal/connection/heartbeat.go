package connection

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatMonitor periodically drops sessions that have not pinged within
// timeout. Same ticker/stopCh/doneCh lifecycle as every other background
// loop in this codebase.
type HeartbeatMonitor struct {
	manager  *Manager
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewHeartbeatMonitor(manager *Manager, interval, timeout time.Duration, logger *slog.Logger) *HeartbeatMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatMonitor{
		manager:  manager,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "heartbeat_monitor"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (h *HeartbeatMonitor) Start(ctx context.Context) {
	go h.run(ctx)
	h.logger.Info("heartbeat monitor started", "interval", h.interval, "timeout", h.timeout)
}

func (h *HeartbeatMonitor) run(ctx context.Context) {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *HeartbeatMonitor) sweep() {
	now := time.Now()

	h.manager.mu.RLock()
	stale := make([]string, 0)
	for sessionID, conn := range h.manager.bySession {
		if now.Sub(conn.lastPing()) > h.timeout {
			stale = append(stale, sessionID)
		}
	}
	h.manager.mu.RUnlock()

	for _, sessionID := range stale {
		h.manager.metrics.HeartbeatTimeouts.Inc()
		h.logger.Info("dropping session for missed heartbeat", "session_id", sessionID)
		h.manager.Detach(sessionID)
	}
}

func (h *HeartbeatMonitor) Stop() {
	close(h.stopCh)
	<-h.doneCh
}
