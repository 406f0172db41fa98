package editpipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
)

type fakeLockChecker struct {
	locks []domain.EditLock
}

func (f *fakeLockChecker) ActiveLocks(_ context.Context, _ string) ([]domain.EditLock, error) {
	return f.locks, nil
}

type fakeRepo struct {
	ops    []domain.EditOperation
	clocks map[string]domain.VectorClock
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{clocks: make(map[string]domain.VectorClock)}
}

func (f *fakeRepo) InsertOperation(_ context.Context, op domain.EditOperation) error {
	f.ops = append(f.ops, op)
	return nil
}

func (f *fakeRepo) TwinClock(_ context.Context, twinID string) (domain.VectorClock, error) {
	return f.clocks[twinID], nil
}

func (f *fakeRepo) SaveTwinClock(_ context.Context, twinID string, clock domain.VectorClock) error {
	f.clocks[twinID] = clock
	return nil
}

func TestPipeline_Submit_RejectsWithoutCoveringLock(t *testing.T) {
	locks := &fakeLockChecker{}
	repo := newFakeRepo()
	p := New(locks, repo, nil, nil)

	_, err := p.Submit(context.Background(), "twin1", "session-a", "user-a", "geometry", "update", domain.NewNull(), nil)
	assert.Error(t, err)
}

func TestPipeline_Submit_AcceptsAndStampsClock(t *testing.T) {
	locks := &fakeLockChecker{locks: []domain.EditLock{
		{ID: "l1", TwinID: "twin1", SessionID: "session-a", Components: []string{"geometry"}, ExpiresAt: time.Now().Add(time.Minute)},
	}}
	repo := newFakeRepo()
	p := New(locks, repo, nil, nil)

	op, err := p.Submit(context.Background(), "twin1", "session-a", "user-a", "geometry", "update", domain.NewNumber(4.2), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), op.Clock["user-a"])
	require.Len(t, repo.ops, 1)

	op2, err := p.Submit(context.Background(), "twin1", "session-a", "user-a", "geometry", "update", domain.NewNumber(4.3), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), op2.Clock["user-a"], "second operation advances the same user's counter")
}

func TestPipeline_Submit_MergesCallerClock(t *testing.T) {
	locks := &fakeLockChecker{locks: []domain.EditLock{
		{ID: "l1", TwinID: "twin1", SessionID: "session-a", Components: []string{"geometry"}, ExpiresAt: time.Now().Add(time.Minute)},
	}}
	repo := newFakeRepo()
	p := New(locks, repo, nil, nil)

	callerClock := domain.VectorClock{"user-b": 9}
	op, err := p.Submit(context.Background(), "twin1", "session-a", "user-a", "geometry", "update", domain.NewNull(), callerClock)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), op.Clock["user-b"])
	assert.Equal(t, uint64(1), op.Clock["user-a"])
}
