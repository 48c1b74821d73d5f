// Package holder implements the credential holder (mdoc) side of a
// proximity presentation: device engagement, session establishment,
// consent-gated disclosure, and response signing.
//
// The package separates the passive Session, which owns the state machine
// and the ephemeral resources of one presentation, from the Orchestrator,
// which drives transitions in response to capability checks, transport
// events, and user consent decisions. A Session never initiates work on
// its own.
package holder
