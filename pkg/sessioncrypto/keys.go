package sessioncrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SessionKeySize is the size of each derived session key in bytes.
const SessionKeySize = 32

// nonceSize is identifier (8 bytes) plus message counter (4 bytes).
const nonceSize = 12

// Direction identifiers forming the fixed nonce prefix. Each direction
// must have a distinct prefix so the two keys never share a nonce space.
var (
	deviceIdentifier = [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	readerIdentifier = [8]byte{0, 0, 0, 0, 0, 0, 0, 0}
)

// Cryptographic errors.
var (
	ErrInvalidPeerKey  = errors.New("invalid peer public key")
	ErrDecryptFailed   = errors.New("session decryption failed")
	ErrKeysWiped       = errors.New("session keys have been wiped")
	ErrCounterOverflow = errors.New("message counter overflow")
)

// Role identifies which side of the session these keys belong to.
type Role uint8

const (
	// RoleDevice is the holder (mdoc) side.
	RoleDevice Role = iota

	// RoleReader is the verifier (mdoc reader) side.
	RoleReader
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleReader:
		return "READER"
	default:
		return "UNKNOWN"
	}
}

// GenerateEphemeralKey creates a fresh P-256 key pair for one session.
func GenerateEphemeralKey() (*ecdh.PrivateKey, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return key, nil
}

// SessionKeys holds the two derived directional keys and their message
// counters. Not safe for concurrent use; the owning session serializes.
type SessionKeys struct {
	sendKey []byte
	recvKey []byte

	sendAEAD cipher.AEAD
	recvAEAD cipher.AEAD

	sendID [8]byte
	recvID [8]byte

	sendCounter uint32
	recvCounter uint32

	wiped bool
}

// DeriveSessionKeys performs ECDH with the peer's ephemeral public key and
// derives the directional session keys, salted with the hash of the session
// transcript. Both sides compute identical key material; the role selects
// which key is used for which direction.
func DeriveSessionKeys(priv *ecdh.PrivateKey, peerPublic []byte, transcriptBytes []byte, role Role) (*SessionKeys, error) {
	peer, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}

	shared, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	defer wipe(shared)

	salt := sha256.Sum256(transcriptBytes)

	deviceKey, err := expandKey(shared, salt[:], "SKDevice")
	if err != nil {
		return nil, err
	}
	readerKey, err := expandKey(shared, salt[:], "SKReader")
	if err != nil {
		wipe(deviceKey)
		return nil, err
	}

	ks := &SessionKeys{}
	switch role {
	case RoleDevice:
		ks.sendKey, ks.recvKey = deviceKey, readerKey
		ks.sendID, ks.recvID = deviceIdentifier, readerIdentifier
	case RoleReader:
		ks.sendKey, ks.recvKey = readerKey, deviceKey
		ks.sendID, ks.recvID = readerIdentifier, deviceIdentifier
	default:
		wipe(deviceKey)
		wipe(readerKey)
		return nil, fmt.Errorf("unknown role %d", role)
	}

	if ks.sendAEAD, err = newAEAD(ks.sendKey); err != nil {
		ks.Wipe()
		return nil, err
	}
	if ks.recvAEAD, err = newAEAD(ks.recvKey); err != nil {
		ks.Wipe()
		return nil, err
	}
	return ks, nil
}

func expandKey(secret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, SessionKeySize)
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", info, err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals a plaintext with the send key. The message counter starts
// at 1 and increments per message.
func (k *SessionKeys) Encrypt(plaintext []byte) ([]byte, error) {
	if k.wiped {
		return nil, ErrKeysWiped
	}
	if k.sendCounter == ^uint32(0) {
		return nil, ErrCounterOverflow
	}
	k.sendCounter++
	nonce := makeNonce(k.sendID, k.sendCounter)
	return k.sendAEAD.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext with the receive key. Any authentication
// failure is fatal to the session; there is no partial trust.
func (k *SessionKeys) Decrypt(ciphertext []byte) ([]byte, error) {
	if k.wiped {
		return nil, ErrKeysWiped
	}
	if k.recvCounter == ^uint32(0) {
		return nil, ErrCounterOverflow
	}
	k.recvCounter++
	nonce := makeNonce(k.recvID, k.recvCounter)
	plaintext, err := k.recvAEAD.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}

func makeNonce(id [8]byte, counter uint32) []byte {
	nonce := make([]byte, nonceSize)
	copy(nonce, id[:])
	binary.BigEndian.PutUint32(nonce[8:], counter)
	return nonce
}

// Wipe overwrites both derived keys. Further Encrypt/Decrypt calls fail
// with ErrKeysWiped. Safe to call more than once.
func (k *SessionKeys) Wipe() {
	if k.wiped {
		return
	}
	k.wiped = true
	wipe(k.sendKey)
	wipe(k.recvKey)
	k.sendAEAD = nil
	k.recvAEAD = nil
}

// Wiped reports whether the keys have been destroyed.
func (k *SessionKeys) Wiped() bool { return k.wiped }

// SendKeyBytes exposes the send key buffer for teardown verification in
// tests. The returned slice aliases the internal buffer.
func (k *SessionKeys) SendKeyBytes() []byte { return k.sendKey }
