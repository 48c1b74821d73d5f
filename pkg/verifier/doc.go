// Package verifier implements the credential verifier (mdoc reader) side
// of a proximity presentation: engagement scanning, session establishment,
// request transmission, and response verification against a trust store.
//
// The split mirrors package holder: a passive Session owns the state
// machine and the ephemeral resources, and the Orchestrator drives it in
// response to scans, transport events, and cancellation.
package verifier
