// Package sessioncrypto implements the cryptographic operations of a
// presentation session: ephemeral key agreement, session-key derivation,
// message encryption, and the two signature layers of a returned document.
//
// # Cipher suite
//
// Cipher suite 1: P-256 ECDH key agreement, HKDF-SHA256 key derivation,
// AES-256-GCM message encryption.
//
// Both sides derive two 32-byte keys from the ECDH shared secret, salted
// with the SHA-256 hash of the session transcript and expanded with the
// info strings "SKDevice" and "SKReader". Each direction has its own key,
// an 8-byte direction identifier, and a monotonically increasing message
// counter; identifier plus counter form the GCM nonce, so no nonce is ever
// reused within a session.
//
// # Signatures
//
// A returned document carries two signatures: the issuer's (over the item
// digests and the certified device public key, validated against a trust
// anchor by pkg/trust) and the holder's per-transaction device signature
// (over the session transcript and document type, proving possession of
// the certified device key).
//
// # Key destruction
//
// All derived key bytes live in buffers owned by this package and are
// overwritten by Context.Wipe, which the owning session invokes during
// teardown on every exit path.
package sessioncrypto
