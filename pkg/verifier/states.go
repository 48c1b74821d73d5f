package verifier

import "github.com/mdoc-protocol/mdoc-go/pkg/session"

// Verifier presentation states.
const (
	// StateNotStarted is the initial state before any work has begun.
	StateNotStarted session.Kind = iota

	// StatePreflight indicates missing platform capabilities. The state
	// payload is the capability.Set still missing.
	StatePreflight

	// StateReadyToScan indicates all capabilities are granted and the
	// verifier is waiting for an engagement QR to be scanned.
	StateReadyToScan

	// StateProcessingEngagement indicates a scanned engagement is being
	// decoded and session keys derived.
	StateProcessingEngagement

	// StateConnecting indicates the verifier is dialing the holder's
	// advertised service and sending session establishment.
	StateConnecting

	// StateVerifying indicates the request was sent and the verifier is
	// waiting for, or checking, the holder's response.
	StateVerifying

	// StateSuccess is terminal: the response verified. The payload is
	// the *Identity extracted from the disclosed items.
	StateSuccess

	// StateFailed is terminal: an unrecoverable error occurred. The
	// payload is the *session.Failure.
	StateFailed

	// StateCancelled is terminal: the transaction was abandoned by the
	// operator, the peer, or a transport drop.
	StateCancelled
)

var stateNames = map[session.Kind]string{
	StateNotStarted:           "NotStarted",
	StatePreflight:            "Preflight",
	StateReadyToScan:          "ReadyToScan",
	StateProcessingEngagement: "ProcessingEngagement",
	StateConnecting:           "Connecting",
	StateVerifying:            "Verifying",
	StateSuccess:              "Success",
	StateFailed:               "Failed",
	StateCancelled:            "Cancelled",
}

// StateName returns the human-readable name of a verifier state kind.
func StateName(k session.Kind) string {
	if n, ok := stateNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Transitions is the closed-world verifier transition table. Cancelled and
// Failed are reachable from every non-terminal state.
var Transitions = session.NewTable(StateName, session.Edges{
	StateNotStarted: {
		StatePreflight, StateReadyToScan, StateFailed, StateCancelled,
	},
	StatePreflight: {
		StatePreflight, StateReadyToScan, StateFailed, StateCancelled,
	},
	StateReadyToScan: {
		StateProcessingEngagement, StateFailed, StateCancelled,
	},
	StateProcessingEngagement: {
		StateConnecting, StateFailed, StateCancelled,
	},
	StateConnecting: {
		StateVerifying, StateFailed, StateCancelled,
	},
	StateVerifying: {
		StateSuccess, StateFailed, StateCancelled,
	},
})

// Identity is the verified result of a presentation: the disclosed
// attributes of a document whose issuer chain, issuer signature, and
// device signature all checked out.
type Identity struct {
	DocType string

	// Attributes holds the disclosed element values per namespace.
	Attributes map[string]map[string]any
}
