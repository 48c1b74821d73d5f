package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EngagementVersion is the device engagement structure version.
const EngagementVersion = "1.0"

// CipherSuite1 is cipher suite 1: P-256 ECDH, HKDF-SHA256, AES-256-GCM.
const CipherSuite1 = 1

// RetrievalMethodBLE identifies BLE device retrieval.
const RetrievalMethodBLE = 2

// RetrievalMethodVersion is the retrieval method structure version.
const RetrievalMethodVersion = 1

// QRPrefix is the URI scheme prefix for engagement QR codes.
const QRPrefix = "mdoc:"

// Engagement encoding errors.
var (
	ErrInvalidEngagement = errors.New("invalid device engagement")
	ErrInvalidQR         = errors.New("invalid engagement QR payload")
)

// DeviceEngagement is the out-of-band structure a holder presents (as a QR
// code) to advertise its connectivity and ephemeral public key.
type DeviceEngagement struct {
	Version          string            `cbor:"0,keyasint"`
	Security         Security          `cbor:"1,keyasint"`
	RetrievalMethods []RetrievalMethod `cbor:"2,keyasint,omitempty"`
}

// Security carries the cipher suite and the holder's ephemeral public key
// (uncompressed SEC1 point). Encoded as a CBOR array per the standard.
type Security struct {
	_ struct{} `cbor:",toarray"`

	CipherSuite int
	EDeviceKey  []byte
}

// RetrievalMethod describes one transport the holder is reachable over.
// Encoded as a CBOR array: [type, version, options].
type RetrievalMethod struct {
	_ struct{} `cbor:",toarray"`

	Type    int
	Version int
	Options BLEOptions
}

// BLEOptions carries the BLE connection mode and service UUID.
type BLEOptions struct {
	PeripheralServerMode bool   `cbor:"0,keyasint"`
	CentralClientMode    bool   `cbor:"1,keyasint"`
	ServiceUUID          []byte `cbor:"10,keyasint,omitempty"`
}

// NewBLEEngagement builds an engagement advertising BLE peripheral server
// mode under the given service UUID, with the holder's ephemeral public key.
func NewBLEEngagement(eDeviceKey []byte, serviceUUID uuid.UUID) *DeviceEngagement {
	return &DeviceEngagement{
		Version: EngagementVersion,
		Security: Security{
			CipherSuite: CipherSuite1,
			EDeviceKey:  eDeviceKey,
		},
		RetrievalMethods: []RetrievalMethod{{
			Type:    RetrievalMethodBLE,
			Version: RetrievalMethodVersion,
			Options: BLEOptions{
				PeripheralServerMode: true,
				ServiceUUID:          serviceUUID[:],
			},
		}},
	}
}

// Validate checks the structural requirements of an engagement.
func (de *DeviceEngagement) Validate() error {
	if de.Version != EngagementVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidEngagement, de.Version)
	}
	if de.Security.CipherSuite != CipherSuite1 {
		return fmt.Errorf("%w: unsupported cipher suite %d", ErrInvalidEngagement, de.Security.CipherSuite)
	}
	if len(de.Security.EDeviceKey) == 0 {
		return fmt.Errorf("%w: missing device key", ErrInvalidEngagement)
	}
	if len(de.RetrievalMethods) == 0 {
		return fmt.Errorf("%w: no retrieval methods", ErrInvalidEngagement)
	}
	return nil
}

// BLEServiceUUID returns the service UUID of the first BLE retrieval method.
func (de *DeviceEngagement) BLEServiceUUID() (uuid.UUID, error) {
	for _, m := range de.RetrievalMethods {
		if m.Type != RetrievalMethodBLE {
			continue
		}
		id, err := uuid.FromBytes(m.Options.ServiceUUID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: bad service UUID: %v", ErrInvalidEngagement, err)
		}
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("%w: no BLE retrieval method", ErrInvalidEngagement)
}

// EncodeEngagement encodes an engagement to its canonical CBOR bytes.
// These exact bytes feed the session transcript, so callers must not
// re-encode on the receiving side from a decoded value.
func EncodeEngagement(de *DeviceEngagement) ([]byte, error) {
	if err := de.Validate(); err != nil {
		return nil, err
	}
	return Marshal(de)
}

// DecodeEngagement decodes and validates engagement CBOR bytes.
func DecodeEngagement(data []byte) (*DeviceEngagement, error) {
	var de DeviceEngagement
	if err := Unmarshal(data, &de); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEngagement, err)
	}
	if err := de.Validate(); err != nil {
		return nil, err
	}
	return &de, nil
}

// EncodeQR renders engagement CBOR bytes as an mdoc: URI suitable for a
// QR code (base64url without padding).
func EncodeQR(engagementBytes []byte) string {
	return QRPrefix + base64.RawURLEncoding.EncodeToString(engagementBytes)
}

// DecodeQR extracts the engagement CBOR bytes from an mdoc: URI.
func DecodeQR(u string) ([]byte, error) {
	if !strings.HasPrefix(u, QRPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidQR, QRPrefix)
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(u, QRPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidQR)
	}
	return data, nil
}
