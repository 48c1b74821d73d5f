package wire

import (
	"errors"
	"fmt"
)

// ResponseVersion is the device response structure version.
const ResponseVersion = "1.0"

// Response-level status codes.
const (
	// ResponseStatusOK indicates a successful presentation.
	ResponseStatusOK uint = 0

	// ResponseStatusGeneralError indicates the holder could not serve
	// the request.
	ResponseStatusGeneralError uint = 10
)

// ErrInvalidResponse indicates a malformed device response.
var ErrInvalidResponse = errors.New("invalid device response")

// DeviceResponse is the holder's answer: the consented attributes with the
// issuer's signature material and the holder's device authentication.
type DeviceResponse struct {
	Version   string     `cbor:"version"`
	Documents []Document `cbor:"documents,omitempty"`
	Status    uint       `cbor:"status"`
}

// Document is one returned credential document.
type Document struct {
	DocType string `cbor:"docType"`

	// NameSpaces holds the disclosed items per namespace. Only items the
	// user consented to are present.
	NameSpaces map[string][]SignedItem `cbor:"nameSpaces"`

	// IssuerAuth is the issuer's signature over the item digests and the
	// device public key, with the issuer certificate chain.
	IssuerAuth IssuerAuth `cbor:"issuerAuth"`

	// DeviceAuth is the holder's per-transaction signature binding the
	// document to the session transcript.
	DeviceAuth DeviceAuth `cbor:"deviceAuth"`
}

// SignedItem is one disclosed data element. The random salt makes the
// issuer digest unlinkable across presentations of undisclosed items.
type SignedItem struct {
	DigestID   uint   `cbor:"digestID"`
	Random     []byte `cbor:"random"`
	Identifier string `cbor:"elementIdentifier"`
	Value      any    `cbor:"elementValue"`
}

// IssuerAuth carries the issuer's signing material: digests of every item
// in the credential (disclosed or not), the certified device public key,
// the DER certificate chain (leaf first), and an ECDSA signature over the
// canonical encoding of digests plus device key.
type IssuerAuth struct {
	Digests        map[string]map[uint][]byte `cbor:"digests"`
	DeviceKeyBytes []byte                     `cbor:"deviceKey"`
	Chain          [][]byte                   `cbor:"chain"`
	Signature      []byte                     `cbor:"signature"`
}

// DeviceAuth is the holder's signature over the session transcript and
// document type, made with the device key certified in IssuerAuth.
type DeviceAuth struct {
	Signature []byte `cbor:"signature"`
}

// Validate checks the structural requirements of a response.
func (dr *DeviceResponse) Validate() error {
	if dr.Version != ResponseVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidResponse, dr.Version)
	}
	if dr.Status == ResponseStatusOK && len(dr.Documents) == 0 {
		return fmt.Errorf("%w: OK status with no documents", ErrInvalidResponse)
	}
	for i, doc := range dr.Documents {
		if doc.DocType == "" {
			return fmt.Errorf("%w: document %d missing docType", ErrInvalidResponse, i)
		}
		if len(doc.IssuerAuth.Chain) == 0 {
			return fmt.Errorf("%w: document %d missing issuer chain", ErrInvalidResponse, i)
		}
	}
	return nil
}

// EncodeResponse encodes a device response.
func EncodeResponse(dr *DeviceResponse) ([]byte, error) {
	if err := dr.Validate(); err != nil {
		return nil, err
	}
	return Marshal(dr)
}

// DecodeResponse decodes and validates a device response.
func DecodeResponse(data []byte) (*DeviceResponse, error) {
	var dr DeviceResponse
	if err := Unmarshal(data, &dr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := dr.Validate(); err != nil {
		return nil, err
	}
	return &dr, nil
}
