package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Transport errors.
var (
	ErrNoAdvertiser = errors.New("no advertiser for service UUID")
	ErrConnClosed   = errors.New("connection closed")
	ErrUnknownConn  = errors.New("unknown connection")
)

// EventType classifies transport events.
type EventType uint8

const (
	// EventConnected reports an established connection. The event
	// carries the connection's Handle, which the receiving orchestrator
	// injects into its session.
	EventConnected EventType = iota

	// EventMessage reports a received message.
	EventMessage

	// EventDisconnected reports the connection is gone, whether closed
	// by the peer, the radio, or a local Release.
	EventDisconnected
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventMessage:
		return "MESSAGE"
	case EventDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Event is one asynchronous transport notification. Events for a given
// connection are delivered in order.
type Event struct {
	Type   EventType
	ConnID string

	// Handle is set on EventConnected.
	Handle *Handle

	// Data is set on EventMessage.
	Data []byte
}

// Transport is the proximity channel abstraction. Implementations deliver
// events serially through the handler registered with OnEvent; the
// teardown operations are idempotent and safe to call during session
// teardown even if the resource is already gone.
type Transport interface {
	// StartAdvertising begins advertising the given service UUID
	// (peripheral server mode) and returns a handle owning the
	// advertising state. A later inbound connection surfaces as an
	// EventConnected.
	StartAdvertising(ctx context.Context, serviceUUID uuid.UUID) (*Handle, error)

	// Connect dials an advertised service (central client mode) and
	// returns a handle owning the connection.
	Connect(ctx context.Context, serviceUUID uuid.UUID) (*Handle, error)

	// Send transmits a message on an established connection. Transport
	// failures after a successful Send surface as EventDisconnected,
	// not as a Send error.
	Send(connID string, data []byte) error

	// OnEvent registers the event handler. Must be called before
	// advertising or connecting.
	OnEvent(fn func(Event))

	// StopAdvertising stops advertising. Idempotent.
	StopAdvertising()

	// Disconnect closes a connection. Idempotent; safe for unknown IDs.
	Disconnect(connID string)
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*Endpoint)(nil)
	_ Transport = (*Stream)(nil)
)
