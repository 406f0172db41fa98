// Package editpipeline is the Edit Pipeline: it admits one edit operation
// at a time, checks the submitting session holds a lock covering the
// target component, stamps the operation against the twin's per-user
// vector-clock high-watermark, persists it, and broadcasts it to every
// other session watching the twin. Grounded on the collaboration-core
// control flow: lock check, then persist, then fan out.
package editpipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/connection"
	"github.com/laces/genesis/internal/domain"
)

// Repository persists edit operations and the twin's running vector-clock
// high-watermark.
type Repository interface {
	InsertOperation(ctx context.Context, op domain.EditOperation) error
	TwinClock(ctx context.Context, twinID string) (domain.VectorClock, error)
	SaveTwinClock(ctx context.Context, twinID string, clock domain.VectorClock) error
}

// LockChecker is the subset of *lock.Manager the pipeline needs — narrowed
// to keep this package's tests from needing a live Redis.
type LockChecker interface {
	ActiveLocks(ctx context.Context, twinID string) ([]domain.EditLock, error)
}

type Pipeline struct {
	locks  LockChecker
	repo   Repository
	conn   *connection.Manager
	logger *slog.Logger
}

func New(locks LockChecker, repo Repository, conn *connection.Manager, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{locks: locks, repo: repo, conn: conn, logger: logger.With("component", "edit_pipeline")}
}

// Submit validates, stamps, persists, and broadcasts one edit operation.
func (p *Pipeline) Submit(ctx context.Context, twinID, sessionID, userID, component, opType string, payload domain.JSONValue, callerClock domain.VectorClock) (*domain.EditOperation, error) {
	locks, err := p.locks.ActiveLocks(ctx, twinID)
	if err != nil {
		return nil, err
	}

	authorized := false
	for _, l := range locks {
		if l.SessionID != sessionID {
			continue
		}
		for _, c := range l.Components {
			if c == component {
				authorized = true
				break
			}
		}
		if authorized {
			break
		}
	}
	if !authorized {
		return nil, apierrors.AuthError("session holds no lock covering this component")
	}

	current, err := p.repo.TwinClock(ctx, twinID)
	if err != nil {
		return nil, err
	}
	stamped := current.Merge(callerClock).Advance(userID)

	op := domain.EditOperation{
		ID:        uuid.New().String(),
		TwinID:    twinID,
		SessionID: sessionID,
		UserID:    userID,
		Component: component,
		OpType:    opType,
		Payload:   payload,
		Clock:     stamped,
		AppliedAt: time.Now(),
	}

	if err := p.repo.InsertOperation(ctx, op); err != nil {
		return nil, err
	}
	if err := p.repo.SaveTwinClock(ctx, twinID, stamped); err != nil {
		p.logger.Error("failed to persist twin clock high-watermark", "twin_id", twinID, "error", err)
	}

	if p.conn != nil {
		payloadValue, marshalErr := operationEventPayload(op)
		if marshalErr != nil {
			p.logger.Error("failed to build broadcast payload", "op_id", op.ID, "error", marshalErr)
		} else {
			event := connection.NewEvent(connection.EventTypeOperationApplied, twinID, payloadValue, connection.EventSourceEditPipeline)
			if err := p.conn.BroadcastExcept(twinID, event, sessionID); err != nil {
				p.logger.Warn("failed to broadcast edit operation", "op_id", op.ID, "error", err)
			}
		}
	}

	return &op, nil
}
