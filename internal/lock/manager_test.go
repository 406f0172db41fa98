package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/kv"
)

// fakeRepo records shadow-row calls without touching a database, so these
// tests exercise only the KV compare-and-set logic.
type fakeRepo struct {
	inserted []domain.EditLock
	released []string
	extended []string
	stale    []domain.EditLock
	inactive []string
}

func (f *fakeRepo) InsertLock(_ context.Context, l domain.EditLock) error {
	f.inserted = append(f.inserted, l)
	return nil
}

func (f *fakeRepo) MarkReleased(_ context.Context, lockID string, _ time.Time) error {
	f.released = append(f.released, lockID)
	return nil
}

func (f *fakeRepo) ExtendLock(_ context.Context, lockID string, _, _ time.Time) error {
	f.extended = append(f.extended, lockID)
	return nil
}

func (f *fakeRepo) StaleLocks(_ context.Context, _ time.Time, _ time.Duration) ([]domain.EditLock, error) {
	return f.stale, nil
}

func (f *fakeRepo) MarkInactive(_ context.Context, lockID string) error {
	f.inactive = append(f.inactive, lockID)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := kv.New(client, kv.DefaultConfig(), nil)
	repo := &fakeRepo{}
	return New(store, repo, time.Minute, nil, nil), repo
}

func TestManager_Acquire_GrantsDisjointComponents(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	l1, err := m.Acquire(ctx, "twin1", "user-a", "session-a", []string{"geometry"}, domain.LockExclusive)
	require.NoError(t, err)
	assert.Equal(t, "twin1", l1.TwinID)

	l2, err := m.Acquire(ctx, "twin1", "user-b", "session-b", []string{"schedule"}, domain.LockExclusive)
	require.NoError(t, err)
	assert.NotEqual(t, l1.ID, l2.ID)

	require.Len(t, repo.inserted, 2)
}

func TestManager_Acquire_RejectsOverlap(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "twin1", "user-a", "session-a", []string{"geometry", "material"}, domain.LockExclusive)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "twin1", "user-b", "session-b", []string{"material"}, domain.LockExclusive)
	require.Error(t, err)

	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeConflict, apiErr.Code)
}

func TestManager_Acquire_SharedLocksDoNotConflict(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "twin1", "user-a", "session-a", []string{"geometry"}, domain.LockShared)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "twin1", "user-b", "session-b", []string{"geometry"}, domain.LockShared)
	assert.NoError(t, err)
}

func TestManager_ReleaseAndReacquire(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "twin1", "user-a", "session-a", []string{"geometry"}, domain.LockExclusive)
	require.NoError(t, err)

	err = m.Release(ctx, "twin1", l.ID, "session-b")
	assert.Error(t, err, "wrong session cannot release")

	err = m.Release(ctx, "twin1", l.ID, "session-a")
	require.NoError(t, err)
	assert.Equal(t, []string{l.ID}, repo.released)

	_, err = m.Acquire(ctx, "twin1", "user-b", "session-b", []string{"geometry"}, domain.LockExclusive)
	assert.NoError(t, err, "component is free after release")
}

func TestManager_Heartbeat_ExtendsExpiry(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "twin1", "user-a", "session-a", []string{"geometry"}, domain.LockExclusive)
	require.NoError(t, err)

	extended, err := m.Heartbeat(ctx, "twin1", l.ID, "session-a")
	require.NoError(t, err)
	assert.True(t, extended.ExpiresAt.After(l.ExpiresAt))
	assert.False(t, extended.HeartbeatAt.Before(l.HeartbeatAt))
	assert.Equal(t, []string{l.ID}, repo.extended)

	_, err = m.Heartbeat(ctx, "twin1", l.ID, "session-b")
	assert.Error(t, err, "wrong session cannot extend")
}

func TestManager_ActiveLocks_ExcludesExpired(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	m.ttl = 10 * time.Millisecond

	_, err := m.Acquire(ctx, "twin1", "user-a", "session-a", []string{"geometry"}, domain.LockExclusive)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	active, err := m.ActiveLocks(ctx, "twin1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReaper_SweepDropsStaleLocksFromKVAndMarksInactive(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "twin1", "user-a", "session-a", []string{"geometry"}, domain.LockExclusive)
	require.NoError(t, err)

	// Simulate what Postgres would return for a lock whose heartbeat has
	// lapsed past grace: the reaper doesn't care how it got stale, only
	// that the repository says so.
	repo.stale = []domain.EditLock{*l}

	reaper := NewReaper(m, time.Hour, time.Minute, nil)
	reaper.sweep(ctx)

	assert.Equal(t, []string{l.ID}, repo.inactive)

	active, err := m.ActiveLocks(ctx, "twin1")
	require.NoError(t, err)
	assert.Empty(t, active)

	members, err := m.kv.SMembers(ctx, activeTwinsSetKey)
	require.NoError(t, err)
	assert.NotContains(t, members, "twin1")
}

func TestReaper_SweepNoopWithoutRepository(t *testing.T) {
	m, _ := newTestManager(t)
	m.repo = nil
	ctx := context.Background()

	reaper := NewReaper(m, time.Hour, time.Minute, nil)
	reaper.sweep(ctx) // must not panic
}
