package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrChannelFull = errors.New("connection: broadcast channel full, event dropped")
var ErrNotConnected = errors.New("connection: session has no attached transport")

type trackedConn struct {
	transport  Transport
	sessionID  string
	userID     string
	twinID     string
	connectedAt time.Time
	lastPingAt  atomic.Int64 // unix nanos
}

func (t *trackedConn) touch(now time.Time) {
	t.lastPingAt.Store(now.UnixNano())
}

func (t *trackedConn) lastPing() time.Time {
	return time.Unix(0, t.lastPingAt.Load())
}

type broadcastMsg struct {
	twinID  string
	event   Event
	exclude string
}

// Manager is the Connection Manager capability: it owns every live
// Transport, indexed by session and by the twin that session is watching,
// and fans out Events to the right subset of sessions.
type Manager struct {
	mu        sync.RWMutex
	bySession map[string]*trackedConn
	byTwin    map[string]map[string]*trackedConn

	eventChan chan broadcastMsg
	sequence  atomic.Int64

	logger  *slog.Logger
	metrics *Metrics

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

func New(logger *slog.Logger, metrics *Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = unregisteredMetrics()
	}
	return &Manager{
		bySession: make(map[string]*trackedConn),
		byTwin:    make(map[string]map[string]*trackedConn),
		eventChan: make(chan broadcastMsg, 1000),
		logger:    logger.With("component", "connection_manager"),
		metrics:   metrics,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the broadcast worker. Non-blocking.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.broadcastWorker(ctx)
}

// Stop drains the broadcast worker. Safe to call once.
func (m *Manager) Stop(ctx context.Context) error {
	close(m.stopCh)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers sessionID's transport. Any previous transport for the
// same session is closed and replaced (a reconnect).
func (m *Manager) Attach(sessionID, userID string, transport Transport) {
	m.mu.Lock()
	if old, ok := m.bySession[sessionID]; ok {
		m.detachLocked(old)
	}
	conn := &trackedConn{transport: transport, sessionID: sessionID, userID: userID, connectedAt: time.Now()}
	conn.touch(time.Now())
	m.bySession[sessionID] = conn
	m.mu.Unlock()

	m.metrics.ConnectionsActive.Set(float64(m.activeCount()))
	m.logger.Info("session attached", "session_id", sessionID, "user_id", userID)
}

// Detach removes sessionID's transport, closing it and dropping any twin
// subscription.
func (m *Manager) Detach(sessionID string) {
	m.mu.Lock()
	conn, ok := m.bySession[sessionID]
	if ok {
		m.detachLocked(conn)
	}
	m.mu.Unlock()

	if ok {
		m.metrics.ConnectionsActive.Set(float64(m.activeCount()))
		m.logger.Info("session detached", "session_id", sessionID)
	}
}

// detachLocked must be called with m.mu held.
func (m *Manager) detachLocked(conn *trackedConn) {
	delete(m.bySession, conn.sessionID)
	if conn.twinID != "" {
		if subs, ok := m.byTwin[conn.twinID]; ok {
			delete(subs, conn.sessionID)
			if len(subs) == 0 {
				delete(m.byTwin, conn.twinID)
			}
		}
	}
	_ = conn.transport.Close()
}

// SubscribeTwin moves sessionID's subscription to twinID, dropping any
// prior subscription — a session watches at most one twin at a time.
func (m *Manager) SubscribeTwin(sessionID, twinID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.bySession[sessionID]
	if !ok {
		return ErrNotConnected
	}

	if conn.twinID != "" {
		if subs, ok := m.byTwin[conn.twinID]; ok {
			delete(subs, sessionID)
			if len(subs) == 0 {
				delete(m.byTwin, conn.twinID)
			}
		}
	}

	conn.twinID = twinID
	if m.byTwin[twinID] == nil {
		m.byTwin[twinID] = make(map[string]*trackedConn)
	}
	m.byTwin[twinID][sessionID] = conn
	return nil
}

// UnsubscribeTwin drops sessionID's current twin subscription, if any.
func (m *Manager) UnsubscribeTwin(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.bySession[sessionID]
	if !ok || conn.twinID == "" {
		return
	}
	if subs, ok := m.byTwin[conn.twinID]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(m.byTwin, conn.twinID)
		}
	}
	conn.twinID = ""
}

// Touch records a heartbeat from sessionID, resetting its staleness clock.
func (m *Manager) Touch(sessionID string) {
	m.mu.RLock()
	conn, ok := m.bySession[sessionID]
	m.mu.RUnlock()
	if ok {
		conn.touch(time.Now())
	}
}

// Broadcast enqueues event for fan-out to every session watching twinID.
// Non-blocking; if the internal channel is full the event is dropped and
// ErrChannelFull is returned (mirrors the teacher's "drop rather than
// block the publisher" choice in internal/realtime).
func (m *Manager) Broadcast(twinID string, event Event) error {
	return m.broadcastExcept(twinID, event, "")
}

// BroadcastExcept is Broadcast but skips excludeSessionID — used by the
// Edit Pipeline, whose caller already has the applied result in its own
// HTTP response and doesn't need an echo of its own operation.
func (m *Manager) BroadcastExcept(twinID string, event Event, excludeSessionID string) error {
	return m.broadcastExcept(twinID, event, excludeSessionID)
}

func (m *Manager) broadcastExcept(twinID string, event Event, excludeSessionID string) error {
	event.TwinID = twinID
	event.Sequence = m.sequence.Add(1)

	select {
	case m.eventChan <- broadcastMsg{twinID: twinID, event: event, exclude: excludeSessionID}:
		return nil
	default:
		m.metrics.ErrorsTotal.WithLabelValues("channel_full").Inc()
		m.logger.Warn("broadcast channel full, dropping event", "twin_id", twinID, "event_type", event.Type)
		return ErrChannelFull
	}
}

// ActiveSessions returns the session IDs currently watching twinID.
func (m *Manager) ActiveSessions(twinID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs, ok := m.byTwin[twinID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) activeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySession)
}

// ActiveConnections reports how many sessions currently have a live
// transport attached.
func (m *Manager) ActiveConnections() int {
	return m.activeCount()
}

func (m *Manager) broadcastWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case msg := <-m.eventChan:
			m.deliver(msg)
		}
	}
}

func (m *Manager) deliver(msg broadcastMsg) {
	start := time.Now()

	m.mu.RLock()
	subs, ok := m.byTwin[msg.twinID]
	targets := make([]*trackedConn, 0, len(subs))
	for _, c := range subs {
		targets = append(targets, c)
	}
	m.mu.RUnlock()
	if !ok || len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, conn := range targets {
		if conn.sessionID == msg.exclude {
			continue
		}
		wg.Add(1)
		go func(c *trackedConn) {
			defer wg.Done()
			select {
			case <-c.transport.Context().Done():
				m.Detach(c.sessionID)
				return
			default:
			}
			if err := c.transport.Send(msg.event); err != nil {
				m.metrics.ErrorsTotal.WithLabelValues("send_failed").Inc()
				m.logger.Warn("failed to deliver event, detaching session", "session_id", c.sessionID, "error", err)
				m.Detach(c.sessionID)
			}
		}(conn)
	}
	wg.Wait()

	m.metrics.EventsTotal.WithLabelValues(msg.event.Type, msg.event.Source).Inc()
	m.metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
}
