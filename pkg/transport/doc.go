// Package transport abstracts the proximity channel a presentation runs
// over.
//
// The engine is written against the Transport interface, which models the
// BLE roles of ISO 18013-5 device retrieval: the holder advertises a
// service (peripheral server mode) and the verifier connects to it
// (central client mode). Messages are opaque byte payloads; disconnection
// surfaces as an event, never as a send return value.
//
// Two implementations ship with the module:
//
//   - Loopback: an in-process transport pairing endpoints through a shared
//     bus, used by tests and the single-process example.
//   - Stream: length-prefixed frames over a net listener/dialer, used by
//     the two-process demo binaries as a stand-in for a BLE radio stack.
//
// A real BLE binding implements the same interface against the platform
// radio APIs and is outside this module's scope.
//
// # Resource handles
//
// Live transport state - an open connection, active advertising - is
// represented by a Handle. A handle is owned by exactly one session once
// injected and releases its resource exactly once, via a non-owning
// release callback into its originating transport. Releasing during
// session teardown is always safe, even if the peer already disconnected.
package transport
