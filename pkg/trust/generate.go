package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// Certificate validity periods.
const (
	// AnchorValidity is the validity period for IACA root certificates.
	AnchorValidity = 15 * 365 * 24 * time.Hour

	// SignerValidity is the validity period for document signer
	// certificates issued under an anchor.
	SignerValidity = 2 * 365 * 24 * time.Hour
)

// Authority is a trust anchor together with its private key, able to issue
// document signer certificates. Held by issuers (and test/demo fixtures),
// never by verifiers.
type Authority struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// Signer is a document signer certificate with its private key, used by an
// issuer to sign credentials.
type Signer struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// NewAuthority generates a self-signed IACA root.
func NewAuthority(name string) (*Authority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate anchor key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             now,
		NotAfter:              now.Add(AnchorValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create anchor certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse anchor certificate: %w", err)
	}
	return &Authority{Certificate: cert, PrivateKey: key}, nil
}

// IssueSigner issues a document signer certificate under the authority.
func (a *Authority) IssueSigner(name string) (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signer key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             now,
		NotAfter:              now.Add(SignerValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.Certificate, &key.PublicKey, a.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create signer certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse signer certificate: %w", err)
	}
	return &Signer{Certificate: cert, PrivateKey: key}, nil
}

// Chain returns the signer's DER chain, leaf first, as carried in a
// document's issuer auth block.
func (s *Signer) Chain() [][]byte {
	return [][]byte{s.Certificate.Raw}
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}
