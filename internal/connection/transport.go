package connection

import "context"

// Transport is a live duplex connection attached to exactly one session.
// The WebSocket handler in cmd/server/handlers implements this; tests use
// an in-memory fake.
type Transport interface {
	// Send delivers event to the remote end. An error means the transport
	// is dead and the Manager should detach it.
	Send(event Event) error

	// Close tears down the underlying connection.
	Close() error

	// Context is cancelled when the transport disconnects.
	Context() context.Context
}
