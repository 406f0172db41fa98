package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) *KV {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, DefaultConfig(), nil)
}

func TestKV_AcquireRelease(t *testing.T) {
	k := newTestKV(t)
	ctx := context.Background()

	ok, err := k.Acquire(ctx, "lock:twin1", "holder-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = k.Acquire(ctx, "lock:twin1", "holder-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while holder-a still holds it")

	err = k.Release(ctx, "lock:twin1", "holder-b")
	assert.ErrorIs(t, err, ErrNotHeld, "wrong holder cannot release")

	err = k.Release(ctx, "lock:twin1", "holder-a")
	require.NoError(t, err)

	ok, err = k.Acquire(ctx, "lock:twin1", "holder-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock is free after release")
}

func TestKV_Extend(t *testing.T) {
	k := newTestKV(t)
	ctx := context.Background()

	_, err := k.Acquire(ctx, "lock:twin2", "holder-a", 5*time.Second)
	require.NoError(t, err)

	err = k.Extend(ctx, "lock:twin2", "holder-a", time.Minute)
	require.NoError(t, err)

	err = k.Extend(ctx, "lock:twin2", "wrong-holder", time.Minute)
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestKV_GetMissingKey(t *testing.T) {
	k := newTestKV(t)
	_, found, err := k.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)
}
