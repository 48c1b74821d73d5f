package trust

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// Chain validation errors.
var (
	ErrEmptyChain   = errors.New("empty certificate chain")
	ErrInvalidChain = errors.New("issuer chain not trusted")
	ErrCertExpired  = errors.New("certificate has expired")
	ErrNotYetValid  = errors.New("certificate is not yet valid")
)

// ValidateChain verifies a DER certificate chain, leaf first, against the
// store's anchors and returns the leaf on success. The leaf's public key
// is then used to check the issuer signature over the document.
func ValidateChain(chain [][]byte, store Store) (*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}

	anchors := store.Anchors()
	if len(anchors) == 0 {
		return nil, ErrNoAnchors
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("%w: parse leaf: %v", ErrInvalidChain, err)
	}

	// Leaf validity is checked before chain building so an out-of-window
	// signer surfaces as ErrCertExpired or ErrNotYetValid rather than the
	// generic ErrInvalidChain from Verify.
	now := time.Now()
	if now.Before(leaf.NotBefore) {
		return nil, ErrNotYetValid
	}
	if now.After(leaf.NotAfter) {
		return nil, ErrCertExpired
	}

	roots := x509.NewCertPool()
	for _, anchor := range anchors {
		roots.AddCert(anchor)
	}

	intermediates := x509.NewCertPool()
	for _, der := range chain[1:] {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: parse intermediate: %v", ErrInvalidChain, err)
		}
		intermediates.AddCert(cert)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := leaf.Verify(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	return leaf, nil
}
