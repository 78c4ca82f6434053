package realtime

import (
	"context"
	"time"
)

// CloseCode identifies why the registry closed a connection. Values follow
// the WebSocket close codes so transport adapters can pass them through.
type CloseCode int

const (
	CloseNormal           CloseCode = 1000
	ClosePolicyViolation  CloseCode = 1008
	CloseCapacityExceeded CloseCode = 1013
)

// Conn is the transport handle the registry manages. Implementations wrap a
// single duplex session (e.g. a WebSocket connection) and must be safe for
// concurrent Send calls.
type Conn interface {
	// ID returns a process-unique identifier for the handle.
	ID() string

	// Accept completes the transport-level handshake. The manager calls it
	// exactly once, after validation and outside the registry lock; a handle
	// that was never accepted must not require Close.
	Accept(ctx context.Context) error

	// Send marshals v and writes it as one framed text message. A send
	// either succeeds or returns an error; it is never retried here.
	Send(v any) error

	// Close terminates the session with the given code and reason.
	// Subsequent sends fail. Close is idempotent.
	Close(code CloseCode, reason string) error
}

// ConnectionInfo is the identity and capability snapshot for one live
// connection. RoomID never changes after admission; re-subscription requires
// a new connection.
type ConnectionInfo struct {
	UserID       string
	RoomID       string
	Permissions  PermissionSet
	ConnectedAt  time.Time
	LastActivity time.Time
}
