package wire

import (
	"errors"
	"fmt"
)

// Session status codes carried in SessionData per ISO 18013-5.
const (
	// StatusErrorSessionEncryption reports a decryption failure.
	StatusErrorSessionEncryption uint = 10

	// StatusErrorCBORDecoding reports a malformed payload.
	StatusErrorCBORDecoding uint = 11

	// StatusSessionTermination requests clean termination of the session.
	StatusSessionTermination uint = 20
)

// Message decoding errors.
var (
	ErrInvalidEstablishment = errors.New("invalid session establishment")
	ErrInvalidSessionData   = errors.New("invalid session data")
)

// SessionEstablishment is the verifier's first transport message: its
// ephemeral public key plus the encrypted DeviceRequest. Receipt of the
// reader key completes the material needed to derive session keys.
type SessionEstablishment struct {
	EReaderKey []byte `cbor:"eReaderKey"`
	Data       []byte `cbor:"data"`
}

// SessionData carries an encrypted payload and/or a status code on the
// established session. A termination status may appear without data.
type SessionData struct {
	Data   []byte `cbor:"data,omitempty"`
	Status *uint  `cbor:"status,omitempty"`
}

// NewTermination builds the clean session termination message.
func NewTermination() *SessionData {
	status := StatusSessionTermination
	return &SessionData{Status: &status}
}

// IsTermination reports whether the message requests session termination.
func (sd *SessionData) IsTermination() bool {
	return sd.Status != nil && *sd.Status == StatusSessionTermination
}

// EncodeEstablishment encodes a session establishment message.
func EncodeEstablishment(se *SessionEstablishment) ([]byte, error) {
	if len(se.EReaderKey) == 0 {
		return nil, fmt.Errorf("%w: missing reader key", ErrInvalidEstablishment)
	}
	if len(se.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidEstablishment)
	}
	return Marshal(se)
}

// DecodeEstablishment decodes a session establishment message.
func DecodeEstablishment(data []byte) (*SessionEstablishment, error) {
	var se SessionEstablishment
	if err := Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEstablishment, err)
	}
	if len(se.EReaderKey) == 0 || len(se.Data) == 0 {
		return nil, fmt.Errorf("%w: incomplete message", ErrInvalidEstablishment)
	}
	return &se, nil
}

// EncodeSessionData encodes a session data message.
func EncodeSessionData(sd *SessionData) ([]byte, error) {
	if len(sd.Data) == 0 && sd.Status == nil {
		return nil, fmt.Errorf("%w: neither data nor status", ErrInvalidSessionData)
	}
	return Marshal(sd)
}

// DecodeSessionData decodes a session data message.
func DecodeSessionData(data []byte) (*SessionData, error) {
	var sd SessionData
	if err := Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionData, err)
	}
	if len(sd.Data) == 0 && sd.Status == nil {
		return nil, fmt.Errorf("%w: neither data nor status", ErrInvalidSessionData)
	}
	return &sd, nil
}

// SessionTranscript cryptographically binds the engagement and the reader's
// ephemeral key. Both sides hash its encoding to derive session keys, which
// defeats man-in-the-middle substitution of either structure.
// Encoded as a CBOR array: [deviceEngagementBytes, eReaderKeyBytes].
type SessionTranscript struct {
	_ struct{} `cbor:",toarray"`

	DeviceEngagementBytes []byte
	EReaderKeyBytes       []byte
}

// EncodeTranscript encodes the session transcript.
func EncodeTranscript(engagementBytes, eReaderKey []byte) ([]byte, error) {
	if len(engagementBytes) == 0 || len(eReaderKey) == 0 {
		return nil, errors.New("transcript requires engagement and reader key bytes")
	}
	return Marshal(&SessionTranscript{
		DeviceEngagementBytes: engagementBytes,
		EReaderKeyBytes:       eReaderKey,
	})
}
