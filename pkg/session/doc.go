// Package session provides the state machine core shared by the holder and
// verifier presentation engines.
//
// # Overview
//
// A presentation session is a passive finite-state machine bound to exactly
// one cryptographic transaction. The session holds the transaction's
// ephemeral resources (key material, transport handles) and enforces which
// state transitions are legal. It never performs I/O itself; an orchestrator
// drives it and owns its lifetime.
//
// This package contains the persona-independent machinery:
//
//   - Machine: a state value plus a closed-world transition table. Every
//     legal (from, to) pair is enumerated; everything else is rejected.
//   - Slot: a write-once container for an ephemeral resource. A second write
//     is a defect, not a recoverable error - it would mean one transaction's
//     resources are being attached to another's.
//   - Resources: the set of live external resources (connections,
//     advertising state) owned by a session, released exactly once.
//
// The holder and verifier packages define their state sets and transition
// tables on top of this machinery, so the legal-transition sets of the two
// personas cannot drift apart structurally.
//
// # Locking
//
// Machine, Slot, and Resources are not safe for concurrent use on their own.
// The owning session type serializes all access behind a single mutex, which
// also gives the required total ordering of transitions.
package session
