package sessioncrypto

import (
	"crypto/ecdh"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

// Context errors.
var (
	ErrNotEstablished     = errors.New("session keys not yet established")
	ErrAlreadyEstablished = errors.New("session keys already established")
)

// Context holds the ephemeral cryptographic state of one transaction:
// the ephemeral key pair created at engagement, the canonical engagement
// bytes, and, once the peer's key is known, the derived session keys and
// transcript. A context belongs to exactly one session and is wiped when
// that session is torn down.
type Context struct {
	role Role

	ephemeral *ecdh.PrivateKey

	engagementBytes []byte
	transcriptBytes []byte

	session *SessionKeys

	wiped bool
}

// NewHolderContext generates the holder's ephemeral key pair and the BLE
// device engagement advertising it. The returned engagement bytes are the
// canonical encoding that must be rendered in the QR code; the context
// retains them for transcript construction.
func NewHolderContext(serviceUUID uuid.UUID) (*Context, []byte, error) {
	key, err := GenerateEphemeralKey()
	if err != nil {
		return nil, nil, err
	}

	engagement := wire.NewBLEEngagement(key.PublicKey().Bytes(), serviceUUID)
	engagementBytes, err := wire.EncodeEngagement(engagement)
	if err != nil {
		return nil, nil, fmt.Errorf("encode engagement: %w", err)
	}

	c := &Context{
		role:            RoleDevice,
		ephemeral:       key,
		engagementBytes: engagementBytes,
	}
	return c, engagementBytes, nil
}

// NewReaderContext decodes a scanned engagement, generates the reader's
// ephemeral key pair, and derives the session keys immediately (the reader
// has both halves as soon as it has scanned). The decoded engagement is
// returned for transport addressing.
func NewReaderContext(engagementBytes []byte) (*Context, *wire.DeviceEngagement, error) {
	engagement, err := wire.DecodeEngagement(engagementBytes)
	if err != nil {
		return nil, nil, err
	}

	key, err := GenerateEphemeralKey()
	if err != nil {
		return nil, nil, err
	}

	c := &Context{
		role:            RoleReader,
		ephemeral:       key,
		engagementBytes: engagementBytes,
	}
	if err := c.establish(engagement.Security.EDeviceKey); err != nil {
		return nil, nil, err
	}
	return c, engagement, nil
}

// Establish derives the holder's session keys from the reader key received
// in the session establishment message. Valid exactly once.
func (c *Context) Establish(eReaderKey []byte) error {
	if c.role != RoleDevice {
		return errors.New("Establish is a holder-side operation")
	}
	return c.establish(eReaderKey)
}

func (c *Context) establish(peerPublic []byte) error {
	if c.wiped {
		return ErrKeysWiped
	}
	if c.session != nil {
		return ErrAlreadyEstablished
	}

	var readerPublic []byte
	if c.role == RoleReader {
		readerPublic = c.ephemeral.PublicKey().Bytes()
	} else {
		readerPublic = peerPublic
	}

	transcriptBytes, err := wire.EncodeTranscript(c.engagementBytes, readerPublic)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	session, err := DeriveSessionKeys(c.ephemeral, peerPublic, transcriptBytes, c.role)
	if err != nil {
		return err
	}

	c.transcriptBytes = transcriptBytes
	c.session = session
	return nil
}

// Role returns which side of the session this context serves.
func (c *Context) Role() Role { return c.role }

// PublicKey returns the ephemeral public key (uncompressed point).
func (c *Context) PublicKey() []byte {
	if c.ephemeral == nil {
		return nil
	}
	return c.ephemeral.PublicKey().Bytes()
}

// Established reports whether session keys have been derived.
func (c *Context) Established() bool { return c.session != nil && !c.wiped }

// TranscriptBytes returns the session transcript encoding, or nil before
// establishment.
func (c *Context) TranscriptBytes() []byte { return c.transcriptBytes }

// Encrypt seals a plaintext for the peer.
func (c *Context) Encrypt(plaintext []byte) ([]byte, error) {
	if c.session == nil {
		return nil, ErrNotEstablished
	}
	return c.session.Encrypt(plaintext)
}

// Decrypt opens a ciphertext from the peer.
func (c *Context) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.session == nil {
		return nil, ErrNotEstablished
	}
	return c.session.Decrypt(ciphertext)
}

// Wipe destroys all key material owned by the context: the derived session
// keys are overwritten and the ephemeral private key reference is dropped.
// Idempotent; invoked by the owning session's teardown on every exit path.
func (c *Context) Wipe() {
	if c.wiped {
		return
	}
	c.wiped = true
	if c.session != nil {
		c.session.Wipe()
	}
	c.ephemeral = nil
}

// Wiped reports whether the context has been destroyed.
func (c *Context) Wiped() bool { return c.wiped }

// SessionKeys exposes the derived keys for teardown verification in tests.
func (c *Context) SessionKeys() *SessionKeys { return c.session }
