package holder

import "github.com/mdoc-protocol/mdoc-go/pkg/session"

// Holder presentation states.
const (
	// StateNotStarted is the initial state before any work has begun.
	StateNotStarted session.Kind = iota

	// StatePreflight indicates missing platform capabilities. The state
	// payload is the capability.Set still missing.
	StatePreflight

	// StateReadyToPresent indicates all capabilities are granted and the
	// session is ready to generate a device engagement.
	StateReadyToPresent

	// StatePresentingEngagement indicates the engagement QR is being
	// shown and the session is advertising, waiting for a verifier to
	// connect. The payload is the engagement QR URI string.
	StatePresentingEngagement

	// StateConnecting indicates a verifier has connected and session
	// establishment is in progress.
	StateConnecting

	// StateRequestReceived indicates a decrypted request is waiting for
	// the user's consent decision. The payload is the *ConsentRequest.
	StateRequestReceived

	// StateProcessingResponse indicates consent was given and the
	// response is being built, signed, and transmitted.
	StateProcessingResponse

	// StateSuccess is terminal: the response was delivered. The payload
	// is the *wire.DeviceResponse that was sent.
	StateSuccess

	// StateFailed is terminal: an unrecoverable error occurred. The
	// payload is the *session.Failure.
	StateFailed

	// StateCancelled is terminal: the transaction was abandoned by the
	// user, the peer, or a transport drop.
	StateCancelled
)

var stateNames = map[session.Kind]string{
	StateNotStarted:           "NotStarted",
	StatePreflight:            "Preflight",
	StateReadyToPresent:       "ReadyToPresent",
	StatePresentingEngagement: "PresentingEngagement",
	StateConnecting:           "Connecting",
	StateRequestReceived:      "RequestReceived",
	StateProcessingResponse:   "ProcessingResponse",
	StateSuccess:              "Success",
	StateFailed:               "Failed",
	StateCancelled:            "Cancelled",
}

// StateName returns the human-readable name of a holder state kind.
func StateName(k session.Kind) string {
	if n, ok := stateNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Transitions is the closed-world holder transition table. Cancelled and
// Failed are reachable from every non-terminal state; the terminal states
// have no outgoing edges.
var Transitions = session.NewTable(StateName, session.Edges{
	StateNotStarted: {
		StatePreflight, StateReadyToPresent, StateFailed, StateCancelled,
	},
	StatePreflight: {
		StatePreflight, StateReadyToPresent, StateFailed, StateCancelled,
	},
	StateReadyToPresent: {
		StatePresentingEngagement, StateFailed, StateCancelled,
	},
	StatePresentingEngagement: {
		StateConnecting, StateFailed, StateCancelled,
	},
	StateConnecting: {
		StateRequestReceived, StateFailed, StateCancelled,
	},
	StateRequestReceived: {
		StateProcessingResponse, StateFailed, StateCancelled,
	},
	StateProcessingResponse: {
		StateSuccess, StateFailed, StateCancelled,
	},
})

// RequestedItem is one data element a verifier asked for, presented to the
// user for a consent decision.
type RequestedItem struct {
	Namespace  string
	Identifier string

	// IntentToRetain reports whether the verifier declared it will store
	// this element after the transaction.
	IntentToRetain bool
}

// ConsentRequest is the decrypted, parsed verifier request in the form the
// consent UI needs.
type ConsentRequest struct {
	DocType string
	Items   []RequestedItem
}

// Selection is the set of identifiers the user approved for disclosure,
// keyed by namespace. It may be any subset of the requested items.
type Selection map[string][]string
