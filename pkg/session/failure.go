package session

// FailureKind classifies why a session reached its failed state.
// Capability problems are not failures; they are represented as preflight
// state data and remain recoverable by re-prompting.
type FailureKind uint8

const (
	// FailureProtocol indicates a malformed engagement, request, or
	// response payload.
	FailureProtocol FailureKind = iota

	// FailureCrypto indicates a decryption failure or digest mismatch.
	FailureCrypto

	// FailureTrust indicates signature or trust-chain validation failure
	// against the configured anchors.
	FailureTrust

	// FailureTransport indicates a transport error during an active
	// exchange. Disconnects while waiting on the user are routed to
	// cancellation instead.
	FailureTransport

	// FailureInternal indicates an unexpected collaborator error.
	FailureInternal
)

// String returns the failure kind name.
func (k FailureKind) String() string {
	switch k {
	case FailureProtocol:
		return "PROTOCOL"
	case FailureCrypto:
		return "CRYPTO"
	case FailureTrust:
		return "TRUST"
	case FailureTransport:
		return "TRANSPORT"
	case FailureInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Failure is the payload carried by a failed state.
type Failure struct {
	Kind FailureKind
	Err  error
}

// Error returns the underlying error message with its classification.
func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Err.Error()
}

// Unwrap exposes the underlying collaborator error.
func (f *Failure) Unwrap() error { return f.Err }
