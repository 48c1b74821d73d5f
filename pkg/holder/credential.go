package holder

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/trust"
	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

// ErrUnknownDocType indicates the holder has no credential for the doc
// type a verifier requested.
var ErrUnknownDocType = errors.New("no credential for doc type")

// Credential is an issued credential as stored on the holder: the full
// set of issuer-signed items, the issuer's authentication structure, and
// the device private key whose public half the issuer certified.
type Credential struct {
	DocType    string
	NameSpaces map[string][]wire.SignedItem
	IssuerAuth wire.IssuerAuth
	DeviceKey  *ecdsa.PrivateKey
}

// Disclose returns the subset of items matching the approved selection.
// Identifiers not present in the credential are skipped silently; the
// verifier learns nothing about elements the holder does not carry.
func (c *Credential) Disclose(approved Selection) map[string][]wire.SignedItem {
	out := make(map[string][]wire.SignedItem)
	for ns, ids := range approved {
		items, ok := c.NameSpaces[ns]
		if !ok {
			continue
		}
		for _, id := range ids {
			for _, item := range items {
				if item.Identifier == id {
					out[ns] = append(out[ns], item)
				}
			}
		}
	}
	return out
}

// Store looks up credentials by doc type.
type Store interface {
	// Lookup returns the credential for the doc type, or
	// ErrUnknownDocType.
	Lookup(docType string) (*Credential, error)
}

// MemoryStore is an in-memory credential store.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

// Add stores a credential, replacing any existing one for the doc type.
func (s *MemoryStore) Add(c *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.DocType] = c
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(docType string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocType, docType)
	}
	return c, nil
}

var _ Store = (*MemoryStore)(nil)

// Issue builds a credential signed by the given document signer. Each
// element gets a fresh random salt and a digest registered under its
// digest ID, and the generated device key is certified in IssuerAuth.
// Intended for provisioning and tests; production holders receive
// credentials from an issuance flow.
func Issue(signer *trust.Signer, docType string, values map[string]map[string]any) (*Credential, error) {
	deviceKey, err := sessioncrypto.GenerateDeviceKey()
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	deviceKeyDER, err := sessioncrypto.MarshalDeviceKey(&deviceKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal device key: %w", err)
	}

	namespaces := make(map[string][]wire.SignedItem, len(values))
	digests := make(map[string]map[uint][]byte, len(values))
	var digestID uint
	for ns, elems := range values {
		digests[ns] = make(map[uint][]byte, len(elems))
		for id, value := range elems {
			salt := make([]byte, 16)
			if _, err := rand.Read(salt); err != nil {
				return nil, fmt.Errorf("generate salt: %w", err)
			}
			item := wire.SignedItem{
				DigestID:   digestID,
				Random:     salt,
				Identifier: id,
				Value:      value,
			}
			digest, err := sessioncrypto.DigestItem(&item)
			if err != nil {
				return nil, fmt.Errorf("digest item %s: %w", id, err)
			}
			namespaces[ns] = append(namespaces[ns], item)
			digests[ns][digestID] = digest
			digestID++
		}
	}

	issuerAuth, err := sessioncrypto.SignIssuerAuth(signer.PrivateKey, signer.Chain(), digests, deviceKeyDER)
	if err != nil {
		return nil, fmt.Errorf("sign issuer auth: %w", err)
	}
	return &Credential{
		DocType:    docType,
		NameSpaces: namespaces,
		IssuerAuth: *issuerAuth,
		DeviceKey:  deviceKey,
	}, nil
}
