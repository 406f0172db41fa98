// Package connection is the Connection Manager: it tracks every live
// transport attached to a session, which twin (if any) that session is
// watching, and fans out events to every session watching a given twin.
// Grounded on the teacher's internal/realtime package (EventBus,
// EventSubscriber, Event), generalized from a single global broadcast
// topic to a per-twin one, since collaboration events must only reach
// sessions that opened that specific twin.
package connection

import (
	"time"

	"github.com/google/uuid"

	"github.com/laces/genesis/internal/domain"
)

// Event is a message broadcast to every session subscribed to a twin.
type Event struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	TwinID    string         `json:"twin_id"`
	Data      domain.JSONValue `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Sequence  int64          `json:"sequence"`
}

const (
	EventTypeLockAcquired     = "lock_acquired"
	EventTypeLockReleased     = "lock_released"
	EventTypeOperationApplied = "operation_applied"
	EventTypeUserJoined       = "user_joined"
	EventTypeUserLeft         = "user_left"
	EventTypeTicketCreated    = "ticket_created"
	EventTypeHealthChanged    = "health_changed"
	EventTypeSystemNotice     = "system_notice"
)

const (
	EventSourceLockManager    = "lock_manager"
	EventSourceEditPipeline   = "edit_pipeline"
	EventSourceConnManager    = "connection_manager"
	EventSourceMaintenance    = "maintenance"
	EventSourceSystem         = "system"
)

func NewEvent(eventType, twinID string, data domain.JSONValue, source string) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.New().String(),
		TwinID:    twinID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}
}
