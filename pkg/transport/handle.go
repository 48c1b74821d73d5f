package transport

import "sync"

// HandleKind distinguishes the resource a handle owns.
type HandleKind uint8

const (
	// HandleAdvertising owns active advertising state.
	HandleAdvertising HandleKind = iota

	// HandleConnection owns one live connection.
	HandleConnection
)

// String returns the handle kind name.
func (k HandleKind) String() string {
	switch k {
	case HandleAdvertising:
		return "ADVERTISING"
	case HandleConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// Handle is an owned token for one live transport resource. The release
// callback is a non-owning back-reference into the originating transport;
// it is invoked at most once, and it must be safe to invoke after the
// underlying resource is already gone (idempotent teardown).
type Handle struct {
	mu       sync.Mutex
	id       string
	kind     HandleKind
	release  func()
	released bool
}

// NewHandle creates a handle over a release callback.
func NewHandle(id string, kind HandleKind, release func()) *Handle {
	return &Handle{id: id, kind: kind, release: release}
}

// ID returns the resource identifier (connection or advertising ID).
func (h *Handle) ID() string { return h.id }

// Kind returns what the handle owns.
func (h *Handle) Kind() HandleKind { return h.kind }

// Release tears down the owned resource. Exactly one invocation reaches
// the transport; further calls are no-ops.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	release := h.release
	h.release = nil
	h.mu.Unlock()

	if release != nil {
		release()
	}
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
