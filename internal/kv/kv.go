// Package kv is the Distributed KV component: a thin, CAS-capable wrapper
// over Redis used as the hot path for lock records, plus a pub/sub helper
// used to fan out cross-instance invalidation hints. It is grounded on the
// teacher's Redis cache and distributed-lock packages, merged into one
// capability and wrapped in a circuit breaker so a flaky Redis degrades to
// a Transient API error instead of hanging every caller.
package kv

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/laces/genesis/internal/apierrors"
)

// ErrNotHeld is returned by Release/Extend when the caller's value does not
// match the key's current value — somebody else holds it, or it expired.
var ErrNotHeld = errors.New("kv: value does not match current holder")

const (
	releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

	extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end`
)

// Config controls the breaker wrapping the KV's Redis calls. WatchUpdate
// and Subscribe use the client directly and do not pass through it.
type Config struct {
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BreakerMaxRequests: 1,
		BreakerInterval:    30 * time.Second,
		BreakerTimeout:     10 * time.Second,
	}
}

// KV is the Distributed KV capability used by the Lock Manager and the
// Connection Manager's cross-instance invalidation channel.
type KV struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New builds a KV over an already-connected redis.Client.
func New(client *redis.Client, cfg Config, logger *slog.Logger) *KV {
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kv-redis",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &KV{client: client, breaker: breaker, logger: logger.With("component", "kv")}
}

func (k *KV) call(ctx context.Context, op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := k.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			k.logger.Warn("kv circuit breaker open", "op", op)
			return nil, apierrors.TransientError("distributed kv unavailable").WithDetails(op)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, apierrors.TransientError("distributed kv call timed out").WithDetails(op)
		}
		return nil, err
	}
	return result, nil
}

// Acquire sets key=value with ttl only if key does not already exist — the
// atomic compare-and-set a lock acquisition needs.
func (k *KV) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := k.call(ctx, "acquire", func() (interface{}, error) {
		return k.client.SetNX(ctx, key, value, ttl).Result()
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Release deletes key only if its current value still matches value.
func (k *KV) Release(ctx context.Context, key, value string) error {
	res, err := k.call(ctx, "release", func() (interface{}, error) {
		return k.client.Eval(ctx, releaseScript, []string{key}, value).Result()
	})
	if err != nil {
		return err
	}
	if res.(int64) != 1 {
		return ErrNotHeld
	}
	return nil
}

// Extend refreshes a key's TTL only if its current value still matches value.
func (k *KV) Extend(ctx context.Context, key, value string, ttl time.Duration) error {
	res, err := k.call(ctx, "extend", func() (interface{}, error) {
		return k.client.Eval(ctx, extendScript, []string{key}, value, int(ttl.Seconds())).Result()
	})
	if err != nil {
		return err
	}
	if res.(int64) != 1 {
		return ErrNotHeld
	}
	return nil
}

// Get returns the current value for key, and false if it doesn't exist.
func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := k.call(ctx, "get", func() (interface{}, error) {
		val, err := k.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return "", nil
		}
		return val, err
	})
	if err != nil {
		return "", false, err
	}
	s := res.(string)
	return s, s != "", nil
}

// ErrWatchConflict is returned by WatchUpdate when every retry lost the
// optimistic race to a concurrent writer.
var ErrWatchConflict = errors.New("kv: too many concurrent updates to key")

// WatchUpdate performs an atomic read-modify-write on key: it reads the
// current value (empty string if absent), calls fn to compute the next
// value, and commits the write transactionally, aborting and retrying if
// key changed in between. This is the CAS primitive the Lock Manager uses
// to update a twin's aggregated lock record without losing a concurrent
// acquire.
func (k *KV) WatchUpdate(ctx context.Context, key string, ttl time.Duration, fn func(current string) (next string, err error)) error {
	const maxRetries = 10

	for attempt := 0; attempt < maxRetries; attempt++ {
		txErr := k.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == redis.Nil {
				current = ""
			}

			next, err := fn(current)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == "" {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, next, ttl)
				}
				return nil
			})
			return err
		}, key)

		if txErr == nil {
			return nil
		}
		if txErr == redis.TxFailedErr {
			continue
		}
		return txErr
	}

	return ErrWatchConflict
}

// Delete removes key unconditionally, used by the stale-lock reaper once it
// has independently confirmed the holder's session is gone.
func (k *KV) Delete(ctx context.Context, key string) error {
	_, err := k.call(ctx, "delete", func() (interface{}, error) {
		return k.client.Del(ctx, key).Result()
	})
	return err
}

// SAdd adds member to the set at key, used to track which twins currently
// have at least one active lock so the reaper has something to scan instead
// of a full keyspace SCAN.
func (k *KV) SAdd(ctx context.Context, key, member string) error {
	_, err := k.call(ctx, "sadd", func() (interface{}, error) {
		return k.client.SAdd(ctx, key, member).Result()
	})
	return err
}

// SRem removes member from the set at key.
func (k *KV) SRem(ctx context.Context, key, member string) error {
	_, err := k.call(ctx, "srem", func() (interface{}, error) {
		return k.client.SRem(ctx, key, member).Result()
	})
	return err
}

// SMembers returns every member of the set at key.
func (k *KV) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := k.call(ctx, "smembers", func() (interface{}, error) {
		return k.client.SMembers(ctx, key).Result()
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

// Publish sends payload on channel for cross-instance fan-out hints (e.g.
// "twin X's lock set changed, re-read it").
func (k *KV) Publish(ctx context.Context, channel, payload string) error {
	_, err := k.call(ctx, "publish", func() (interface{}, error) {
		return k.client.Publish(ctx, channel, payload).Result()
	})
	return err
}

// Subscribe returns a live subscription to channel. Callers read
// sub.Channel() until ctx is cancelled, then must call sub.Close().
func (k *KV) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return k.client.Subscribe(ctx, channel)
}

// Ping verifies connectivity, used by the health endpoint.
func (k *KV) Ping(ctx context.Context) error {
	_, err := k.call(ctx, "ping", func() (interface{}, error) {
		return nil, k.client.Ping(ctx).Err()
	})
	return err
}

// Close releases the underlying Redis client.
func (k *KV) Close() error {
	return k.client.Close()
}
