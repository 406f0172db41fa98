package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
)

type fakeTransport struct {
	mu       sync.Mutex
	received []Event
	ctx      context.Context
	cancel   context.CancelFunc
	failSend bool
}

func newFakeTransport() *fakeTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeTransport{ctx: ctx, cancel: cancel}
}

func (f *fakeTransport) Send(event Event) error {
	if f.failSend {
		return assert.AnError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, event)
	return nil
}

func (f *fakeTransport) Close() error {
	f.cancel()
	return nil
}

func (f *fakeTransport) Context() context.Context { return f.ctx }

func (f *fakeTransport) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.received))
	copy(out, f.received)
	return out
}

var testMetrics = NewMetrics("genesis_test_connection")

func newTestManager() *Manager {
	return New(nil, testMetrics)
}

func TestManager_BroadcastReachesOnlySubscribedSessions(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	t1 := newFakeTransport()
	t2 := newFakeTransport()
	m.Attach("session-a", "user-a", t1)
	m.Attach("session-b", "user-b", t2)

	require.NoError(t, m.SubscribeTwin("session-a", "twin1"))

	err := m.Broadcast("twin1", NewEvent(EventTypeLockAcquired, "twin1", domain.NewNull(), EventSourceLockManager))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(t1.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, t2.events())
}

func TestManager_DetachClosesTransportAndDropsSubscription(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	tr := newFakeTransport()
	m.Attach("session-a", "user-a", tr)
	require.NoError(t, m.SubscribeTwin("session-a", "twin1"))

	m.Detach("session-a")

	assert.Empty(t, m.ActiveSessions("twin1"))
	select {
	case <-tr.Context().Done():
	default:
		t.Fatal("expected transport context to be cancelled on detach")
	}
}

func TestManager_SendFailureDetachesSession(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	tr := newFakeTransport()
	tr.failSend = true
	m.Attach("session-a", "user-a", tr)
	require.NoError(t, m.SubscribeTwin("session-a", "twin1"))

	require.NoError(t, m.Broadcast("twin1", NewEvent(EventTypeLockAcquired, "twin1", domain.NewNull(), EventSourceLockManager)))

	require.Eventually(t, func() bool {
		return len(m.ActiveSessions("twin1")) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHeartbeatMonitor_DropsStaleConnections(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	tr := newFakeTransport()
	m.Attach("session-a", "user-a", tr)

	monitor := NewHeartbeatMonitor(m, 5*time.Millisecond, 10*time.Millisecond, nil)
	monitor.Start(ctx)
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return m.activeCount() == 0
	}, time.Second, 5*time.Millisecond)
}
