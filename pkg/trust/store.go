package trust

import (
	"crypto/x509"
	"errors"
	"sync"
)

// Store errors.
var (
	ErrInvalidAnchor = errors.New("invalid trust anchor")
	ErrNoAnchors     = errors.New("no trust anchors configured")
)

// Store provides the trust anchors the verifier validates issuer chains
// against. Implementations must be safe for concurrent use.
type Store interface {
	// Anchors returns all configured anchor certificates.
	Anchors() []*x509.Certificate

	// AddAnchor registers an anchor certificate.
	AddAnchor(cert *x509.Certificate) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	anchors []*x509.Certificate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Anchors returns a copy of the anchor list.
func (s *MemoryStore) Anchors() []*x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*x509.Certificate, len(s.anchors))
	copy(out, s.anchors)
	return out
}

// AddAnchor registers an anchor. Only CA certificates are accepted.
func (s *MemoryStore) AddAnchor(cert *x509.Certificate) error {
	if cert == nil {
		return ErrInvalidAnchor
	}
	if !cert.IsCA {
		return errors.New("anchor certificate is not a CA")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors = append(s.anchors, cert)
	return nil
}

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)
