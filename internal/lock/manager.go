// Package lock is the Lock Manager: it grants sessions exclusive or shared
// edit access to a digital twin's components. The hot-path record — the set
// of every lock currently held on a twin — lives in the Distributed KV as a
// single JSON blob keyed by twin, so acquisition is one atomic
// compare-and-set over the whole set rather than a per-component key. A
// Postgres shadow row is written alongside for audit reads and crash
// recovery; the KV record remains the source of truth while a lock is live.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/kv"
)

const activeTwinsSetKey = "locks:active-twins"

func recordKey(twinID string) string {
	return "lock:twin:" + twinID
}

// errConflict carries the specific lock a requested acquire overlapped with,
// so Acquire can surface it in the returned APIError's details.
type errConflict struct {
	with domain.EditLock
}

func (e *errConflict) Error() string {
	return fmt.Sprintf("overlaps lock %s held by session %s", e.with.ID, e.with.SessionID)
}

var errLockNotFound = errors.New("lock: not found")

// Repository persists the durable shadow row for an EditLock. Implemented
// against postgres.DatabaseConnection.
type Repository interface {
	InsertLock(ctx context.Context, l domain.EditLock) error
	MarkReleased(ctx context.Context, lockID string, releasedAt time.Time) error
	ExtendLock(ctx context.Context, lockID string, expiresAt, heartbeatAt time.Time) error
	StaleLocks(ctx context.Context, now time.Time, grace time.Duration) ([]domain.EditLock, error)
	MarkInactive(ctx context.Context, lockID string) error
}

// Manager is the Lock Manager capability.
type Manager struct {
	kv      *kv.KV
	repo    Repository
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

func New(kvStore *kv.KV, repo Repository, ttl time.Duration, logger *slog.Logger, metrics *Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = unregisteredMetrics()
	}
	return &Manager{kv: kvStore, repo: repo, ttl: ttl, logger: logger.With("component", "lock"), metrics: metrics}
}

func decodeRecord(current string) (map[string]domain.EditLock, error) {
	record := make(map[string]domain.EditLock)
	if current == "" {
		return record, nil
	}
	if err := json.Unmarshal([]byte(current), &record); err != nil {
		return nil, fmt.Errorf("lock: decode record: %w", err)
	}
	return record, nil
}

func encodeRecord(record map[string]domain.EditLock) (string, error) {
	if len(record) == 0 {
		return "", nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("lock: encode record: %w", err)
	}
	return string(data), nil
}

func pruneExpired(record map[string]domain.EditLock, now time.Time) {
	for id, l := range record {
		if l.Expired(now) {
			delete(record, id)
		}
	}
}

// Acquire grants twinID's components to sessionID, or fails with a
// apierrors.CodeConflict error naming the lock it overlapped with.
func (m *Manager) Acquire(ctx context.Context, twinID, userID, sessionID string, components []string, lockType domain.LockType) (*domain.EditLock, error) {
	now := time.Now()
	newLock := domain.EditLock{
		ID:          uuid.New().String(),
		TwinID:      twinID,
		UserID:      userID,
		SessionID:   sessionID,
		Components:  components,
		Type:        lockType,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.ttl),
		HeartbeatAt: now,
		IsActive:    true,
	}

	key := recordKey(twinID)
	err := m.kv.WatchUpdate(ctx, key, m.ttl, func(current string) (string, error) {
		record, err := decodeRecord(current)
		if err != nil {
			return "", err
		}
		pruneExpired(record, now)

		for _, existing := range record {
			if !newLock.Overlaps(existing) {
				continue
			}
			if lockType == domain.LockShared && existing.Type == domain.LockShared {
				continue
			}
			return "", &errConflict{with: existing}
		}

		record[newLock.ID] = newLock
		return encodeRecord(record)
	})

	if err != nil {
		var conflict *errConflict
		if errors.As(err, &conflict) {
			m.metrics.ConflictTotal.Inc()
			m.metrics.AcquireTotal.WithLabelValues("conflict").Inc()
			return nil, apierrors.ConflictError("component already locked").
				WithDetails(map[string]string{"held_by_session": conflict.with.SessionID, "lock_id": conflict.with.ID})
		}
		m.metrics.AcquireTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := m.kv.SAdd(ctx, activeTwinsSetKey, twinID); err != nil {
		m.logger.Warn("failed to track twin in active-locks set", "twin_id", twinID, "error", err)
	}

	if m.repo != nil {
		if err := m.repo.InsertLock(ctx, newLock); err != nil {
			m.logger.Error("failed to write lock shadow row", "lock_id", newLock.ID, "error", err)
		}
	}

	m.metrics.AcquireTotal.WithLabelValues("granted").Inc()
	m.metrics.ActiveLocks.Inc()
	return &newLock, nil
}

// Release drops lockID, provided sessionID is the session that holds it.
func (m *Manager) Release(ctx context.Context, twinID, lockID, sessionID string) error {
	key := recordKey(twinID)
	released := false

	err := m.kv.WatchUpdate(ctx, key, m.ttl, func(current string) (string, error) {
		record, err := decodeRecord(current)
		if err != nil {
			return "", err
		}

		existing, ok := record[lockID]
		if !ok {
			return current, nil
		}
		if existing.SessionID != sessionID {
			return "", apierrors.AuthError("lock is held by a different session")
		}

		delete(record, lockID)
		released = true
		return encodeRecord(record)
	})
	if err != nil {
		m.metrics.ReleaseTotal.WithLabelValues("error").Inc()
		return err
	}
	if !released {
		m.metrics.ReleaseTotal.WithLabelValues("not_found").Inc()
		return apierrors.NotFoundError("lock")
	}

	if m.repo != nil {
		if err := m.repo.MarkReleased(ctx, lockID, time.Now()); err != nil {
			m.logger.Error("failed to mark lock shadow row released", "lock_id", lockID, "error", err)
		}
	}

	m.metrics.ReleaseTotal.WithLabelValues("ok").Inc()
	m.metrics.ActiveLocks.Dec()
	return nil
}

// Heartbeat extends lockID's expiry by the manager's configured TTL.
func (m *Manager) Heartbeat(ctx context.Context, twinID, lockID, sessionID string) (*domain.EditLock, error) {
	now := time.Now()
	var extended domain.EditLock

	key := recordKey(twinID)
	err := m.kv.WatchUpdate(ctx, key, m.ttl, func(current string) (string, error) {
		record, err := decodeRecord(current)
		if err != nil {
			return "", err
		}

		existing, ok := record[lockID]
		if !ok {
			return "", errLockNotFound
		}
		if existing.SessionID != sessionID {
			return "", apierrors.AuthError("lock is held by a different session")
		}

		existing.ExpiresAt = now.Add(m.ttl)
		existing.HeartbeatAt = now
		record[lockID] = existing
		extended = existing
		return encodeRecord(record)
	})
	if err != nil {
		if errors.Is(err, errLockNotFound) {
			return nil, apierrors.NotFoundError("lock")
		}
		return nil, err
	}

	if m.repo != nil {
		if err := m.repo.ExtendLock(ctx, lockID, extended.ExpiresAt, extended.HeartbeatAt); err != nil {
			m.logger.Error("failed to extend lock shadow row", "lock_id", lockID, "error", err)
		}
	}
	return &extended, nil
}

// ActiveLocks returns every non-expired lock currently held on twinID.
func (m *Manager) ActiveLocks(ctx context.Context, twinID string) ([]domain.EditLock, error) {
	current, _, err := m.kv.Get(ctx, recordKey(twinID))
	if err != nil {
		return nil, err
	}
	record, err := decodeRecord(current)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	locks := make([]domain.EditLock, 0, len(record))
	for _, l := range record {
		if !l.Expired(now) {
			locks = append(locks, l)
		}
	}
	return locks, nil
}
