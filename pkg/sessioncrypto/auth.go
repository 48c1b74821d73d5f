package sessioncrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

// Signature errors.
var (
	ErrDeviceAuthFailed = errors.New("device authentication failed")
	ErrIssuerAuthFailed = errors.New("issuer authentication failed")
	ErrDigestMismatch   = errors.New("item digest mismatch")
)

// GenerateDeviceKey creates the long-lived document device key. In a real
// wallet this key lives in secure hardware; here it is generated per
// credential at issuance.
func GenerateDeviceKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	return key, nil
}

// MarshalDeviceKey encodes a device public key to PKIX DER, the form
// embedded in the issuer-signed structure.
func MarshalDeviceKey(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal device key: %w", err)
	}
	return der, nil
}

// parseDeviceKey decodes a PKIX DER device public key.
func parseDeviceKey(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse device key: %v", ErrDeviceAuthFailed, err)
	}
	ec, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: device key is not ECDSA", ErrDeviceAuthFailed)
	}
	return ec, nil
}

// deviceAuthDigest binds the device signature to this exact transaction.
type deviceAuthInput struct {
	_ struct{} `cbor:",toarray"`

	TranscriptBytes []byte
	DocType         string
}

func deviceAuthDigest(transcriptBytes []byte, docType string) ([32]byte, error) {
	data, err := wire.Marshal(&deviceAuthInput{
		TranscriptBytes: transcriptBytes,
		DocType:         docType,
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode device auth input: %w", err)
	}
	return sha256.Sum256(data), nil
}

// SignDeviceAuth produces the holder's per-transaction signature over the
// session transcript and document type.
func SignDeviceAuth(deviceKey *ecdsa.PrivateKey, transcriptBytes []byte, docType string) (*wire.DeviceAuth, error) {
	digest, err := deviceAuthDigest(transcriptBytes, docType)
	if err != nil {
		return nil, err
	}
	sig, err := ecdsa.SignASN1(rand.Reader, deviceKey, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign device auth: %w", err)
	}
	return &wire.DeviceAuth{Signature: sig}, nil
}

// VerifyDeviceAuth checks the holder's signature using the device key
// certified in the document's issuer-signed structure. A failure is always
// fatal to the session.
func VerifyDeviceAuth(deviceKeyDER []byte, transcriptBytes []byte, doc *wire.Document) error {
	pub, err := parseDeviceKey(deviceKeyDER)
	if err != nil {
		return err
	}
	digest, err := deviceAuthDigest(transcriptBytes, doc.DocType)
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(pub, digest[:], doc.DeviceAuth.Signature) {
		return ErrDeviceAuthFailed
	}
	return nil
}

// issuerAuthInput is the canonical structure the issuer signs: every item
// digest in the credential plus the certified device public key.
type issuerAuthInput struct {
	_ struct{} `cbor:",toarray"`

	Digests        map[string]map[uint][]byte
	DeviceKeyBytes []byte
}

func issuerAuthDigest(digests map[string]map[uint][]byte, deviceKeyDER []byte) ([32]byte, error) {
	data, err := wire.Marshal(&issuerAuthInput{
		Digests:        digests,
		DeviceKeyBytes: deviceKeyDER,
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode issuer auth input: %w", err)
	}
	return sha256.Sum256(data), nil
}

// DigestItem computes the issuer digest of one signed item. The item's
// random salt is part of the digest input, making undisclosed digests
// unlinkable to values.
func DigestItem(item *wire.SignedItem) ([]byte, error) {
	data, err := wire.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// SignIssuerAuth produces the issuer signature block at issuance time.
// The chain is the issuer's DER certificate chain, leaf first.
func SignIssuerAuth(signer *ecdsa.PrivateKey, chain [][]byte, digests map[string]map[uint][]byte, deviceKeyDER []byte) (*wire.IssuerAuth, error) {
	digest, err := issuerAuthDigest(digests, deviceKeyDER)
	if err != nil {
		return nil, err
	}
	sig, err := ecdsa.SignASN1(rand.Reader, signer, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign issuer auth: %w", err)
	}
	return &wire.IssuerAuth{
		Digests:        digests,
		DeviceKeyBytes: deviceKeyDER,
		Chain:          chain,
		Signature:      sig,
	}, nil
}

// VerifyIssuerAuth checks the issuer signature with the leaf certificate's
// public key, then verifies that every disclosed item's recomputed digest
// matches the signed digest set. Chain validation against the trust anchor
// is the caller's responsibility (pkg/trust).
func VerifyIssuerAuth(leaf *x509.Certificate, doc *wire.Document) error {
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: issuer key is not ECDSA", ErrIssuerAuthFailed)
	}

	digest, err := issuerAuthDigest(doc.IssuerAuth.Digests, doc.IssuerAuth.DeviceKeyBytes)
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(pub, digest[:], doc.IssuerAuth.Signature) {
		return ErrIssuerAuthFailed
	}

	// Digest integrity of every disclosed item.
	for namespace, items := range doc.NameSpaces {
		signed := doc.IssuerAuth.Digests[namespace]
		for i := range items {
			item := &items[i]
			want, ok := signed[item.DigestID]
			if !ok {
				return fmt.Errorf("%w: %s/%s has no signed digest",
					ErrDigestMismatch, namespace, item.Identifier)
			}
			got, err := DigestItem(item)
			if err != nil {
				return err
			}
			if !hashEqual(got, want) {
				return fmt.Errorf("%w: %s/%s", ErrDigestMismatch, namespace, item.Identifier)
			}
		}
	}
	return nil
}

func hashEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
