// Package capability defines the device capabilities a presentation needs
// and the gate interface used to probe and request them.
//
// Missing capabilities are preflight state data, not errors: the session
// stays in its preflight state, re-querying the gate after each user
// grant or denial, until the missing set is empty.
package capability

import (
	"context"
	"sort"
	"strings"
)

// Capability identifies a device capability or permission.
type Capability uint8

const (
	// Bluetooth is the BLE radio permission, required by both personas.
	Bluetooth Capability = iota

	// Camera is required by the verifier to scan the engagement QR.
	Camera

	// Location is required on platforms where BLE scanning implies
	// location access.
	Location
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case Bluetooth:
		return "BLUETOOTH"
	case Camera:
		return "CAMERA"
	case Location:
		return "LOCATION"
	default:
		return "UNKNOWN"
	}
}

// Set is a set of capabilities.
type Set map[Capability]struct{}

// NewSet builds a set from the given capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether the set includes c.
func (s Set) Contains(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Empty reports whether the set has no members.
func (s Set) Empty() bool { return len(s) == 0 }

// String returns the sorted, comma-separated capability names.
func (s Set) String() string {
	names := make([]string, 0, len(s))
	for c := range s {
		names = append(names, c.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Gate probes for missing capabilities and requests authorization for them.
// Implementations wrap the platform permission APIs; the engine only ever
// sees the abstract result.
type Gate interface {
	// CheckCapabilities returns the set of capabilities still missing.
	// An empty set means the persona may proceed.
	CheckCapabilities(ctx context.Context) (Set, error)

	// RequestAuthorization prompts for one capability and resolves to
	// whether it was granted.
	RequestAuthorization(ctx context.Context, c Capability) (bool, error)
}

// GrantedGate is a Gate that reports nothing missing and grants every
// request. Useful for demos and environments without a permission model.
type GrantedGate struct{}

// CheckCapabilities returns an empty set.
func (GrantedGate) CheckCapabilities(context.Context) (Set, error) {
	return Set{}, nil
}

// RequestAuthorization always grants.
func (GrantedGate) RequestAuthorization(context.Context, Capability) (bool, error) {
	return true, nil
}

// Compile-time interface satisfaction check.
var _ Gate = GrantedGate{}
