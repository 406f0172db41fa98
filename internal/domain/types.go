// Package domain holds the shared types every other package builds on:
// the collaboration-core entities (User, Session, DigitalTwin, TwinVersion,
// EditLock, EditOperation, Connection) and the maintenance-core entities
// (MachineNode, TelemetrySample, MaintenanceTicket).
package domain

import (
	"math"
	"time"
)

// User is an authenticated principal scoped to a single organization.
type User struct {
	ID             string
	Username       string
	PasswordHash   string
	OrganizationID string
	CreatedAt      time.Time
}

// Session is a logged-in user's bearer-token session. Sessions are
// destroyed (marked inactive) once Now() passes ExpiresAt.
type Session struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Active    bool
}

func (s Session) Expired(now time.Time) bool {
	return !s.Active || now.After(s.ExpiresAt)
}

// DigitalTwin is the collaboratively-edited object: a named, versioned
// document with a set of addressable components.
type DigitalTwin struct {
	ID             string
	Name           string
	OrganizationID string
	Components     []string
	CreatedBy      string
	CreatedAt      time.Time
}

// VectorClock tracks, per user, the highest operation counter that
// user has contributed. The server stamps incoming operations against
// the twin's high-watermark clock but never attempts to merge or resolve
// causal conflicts itself (spec: stamping only, not CRDT merge).
type VectorClock map[string]uint64

// Merge returns a new clock that is the pairwise max of c and other.
func (c VectorClock) Merge(other VectorClock) VectorClock {
	out := make(VectorClock, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// Advance returns a copy of c with userID's counter incremented by one.
func (c VectorClock) Advance(userID string) VectorClock {
	out := c.Merge(nil)
	out[userID]++
	return out
}

// TwinVersion is an immutable snapshot of a DigitalTwin taken at save time.
type TwinVersion struct {
	ID            string
	TwinID        string
	VersionNumber int
	Clock         VectorClock
	CreatedBy     string
	CreatedAt     time.Time
}

// LockType distinguishes exclusive component locks from shared read locks.
type LockType string

const (
	LockExclusive LockType = "exclusive"
	LockShared    LockType = "shared"
)

// EditLock grants a session exclusive (or shared) write access to one or
// more named components of a twin, for a bounded duration. The KV holds
// the hot-path record; Postgres holds the durable shadow row used for
// audit reads and crash recovery.
type EditLock struct {
	ID          string
	TwinID      string
	UserID      string
	SessionID   string
	Components  []string
	Type        LockType
	AcquiredAt  time.Time
	ExpiresAt   time.Time
	HeartbeatAt time.Time
	IsActive    bool
}

func (l EditLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Overlaps reports whether l and other claim at least one component in
// common — two exclusive locks on disjoint components never conflict.
func (l EditLock) Overlaps(other EditLock) bool {
	set := make(map[string]struct{}, len(l.Components))
	for _, c := range l.Components {
		set[c] = struct{}{}
	}
	for _, c := range other.Components {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

// EditOperation is one atomic mutation to a twin component, submitted by a
// live session and broadcast to every other session attached to the twin.
type EditOperation struct {
	ID        string
	TwinID    string
	SessionID string
	UserID    string
	Component string
	OpType    string
	Payload   JSONValue
	Clock     VectorClock
	AppliedAt time.Time
}

// Connection is a live duplex transport attached to exactly one session,
// optionally subscribed to exactly one twin.
type Connection struct {
	SessionID    string
	UserID       string
	TwinID       string
	ConnectedAt  time.Time
	LastPingAt   time.Time
}

// MachineNode is a physical asset whose telemetry this platform ingests
// and whose maintenance this platform schedules.
type MachineNode struct {
	ID                string
	Name              string
	OrganizationID    string
	Online            bool
	LastMaintenanceAt *time.Time
	Metadata          JSONValue
	CreatedAt         time.Time
}

// DaysSinceMaintenance returns the whole days between now and the node's
// last maintenance date, or 9999 when unknown.
func (n MachineNode) DaysSinceMaintenance(now time.Time) int {
	if n.LastMaintenanceAt == nil {
		return 9999
	}
	return int(now.Sub(*n.LastMaintenanceAt).Hours() / 24)
}

// TelemetrySample is one reading from a MachineNode at a point in time.
// VibX/VibY/VibZ are nullable since not every sensor rig reports all three
// axes; the Health Assessor only folds a sample's vibration into its
// window average when all three are present.
type TelemetrySample struct {
	ID             string
	NodeID         string
	Timestamp      time.Time
	RPM            *float64
	Torque         *float64
	VibX           *float64
	VibY           *float64
	VibZ           *float64
	Temperature    *float64
	Power          *float64
	ToolWear       *float64
	ErrorCode      *string
	CustomMetrics  JSONValue
}

// Vibration returns the magnitude √(x²+y²+z²) of the sample's vibration
// vector, and false when any axis is missing.
func (s TelemetrySample) Vibration() (float64, bool) {
	if s.VibX == nil || s.VibY == nil || s.VibZ == nil {
		return 0, false
	}
	x, y, z := *s.VibX, *s.VibY, *s.VibZ
	return math.Sqrt(x*x + y*y + z*z), true
}

// TicketStatus is the lifecycle state of a MaintenanceTicket.
type TicketStatus string

const (
	TicketOpen         TicketStatus = "open"
	TicketAcknowledged TicketStatus = "acknowledged"
	TicketInProgress   TicketStatus = "in_progress"
	TicketResolved     TicketStatus = "resolved"
)

// TicketPriority ranks urgency for the schedule optimizer.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityMedium   TicketPriority = "medium"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

// MaintenanceTicket is a recommendation raised by the Health Assessor,
// Anomaly Detector, or Failure Predictor for a specific node.
type MaintenanceTicket struct {
	ID             string
	NodeID         string
	Title          string
	Description    string
	Priority       TicketPriority
	Status         TicketStatus
	DiagnosticData JSONValue
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
}
