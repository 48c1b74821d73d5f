package log

import "time"

// Event is one protocol log event. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the transaction (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Role is the local persona.
	Role Role `cbor:"3,keyasint"`

	// Direction indicates message flow, for frame events.
	Direction Direction `cbor:"4,keyasint,omitempty"`

	// Type-specific payload (exactly one is set).
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	Frame       *FrameEvent       `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"12,keyasint,omitempty"`
}

// Role identifies the local persona in an event.
type Role uint8

const (
	// RoleHolder is the credential holder (mdoc).
	RoleHolder Role = 0
	// RoleVerifier is the credential verifier (mdoc reader).
	RoleVerifier Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleHolder:
		return "HOLDER"
	case RoleVerifier:
		return "VERIFIER"
	default:
		return "UNKNOWN"
	}
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent records a session state transition.
type StateChangeEvent struct {
	From string `cbor:"1,keyasint"`
	To   string `cbor:"2,keyasint"`
}

// FrameEvent records a transport frame without its contents.
type FrameEvent struct {
	Size int `cbor:"1,keyasint"`
}

// ErrorEvent records an error at any layer.
type ErrorEvent struct {
	Message string `cbor:"1,keyasint"`
}

// NewStateChange builds a state transition event.
func NewStateChange(sessionID string, role Role, from, to string) Event {
	return Event{
		Timestamp:   time.Now(),
		SessionID:   sessionID,
		Role:        role,
		StateChange: &StateChangeEvent{From: from, To: to},
	}
}

// NewFrame builds a transport frame event.
func NewFrame(sessionID string, role Role, dir Direction, size int) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Role:      role,
		Direction: dir,
		Frame:     &FrameEvent{Size: size},
	}
}

// NewError builds an error event.
func NewError(sessionID string, role Role, err error) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Role:      role,
		Error:     &ErrorEvent{Message: err.Error()},
	}
}
