package trust

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// anchorsFile is the YAML shape of a trust anchor file:
//
//	anchors:
//	  - name: Example IACA
//	    pem: |
//	      -----BEGIN CERTIFICATE-----
//	      ...
type anchorsFile struct {
	Anchors []anchorEntry `yaml:"anchors"`
}

type anchorEntry struct {
	Name string `yaml:"name"`
	PEM  string `yaml:"pem"`
}

// LoadStore reads a YAML trust anchor file into a MemoryStore.
func LoadStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust anchors: %w", err)
	}

	var file anchorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse trust anchors: %w", err)
	}
	if len(file.Anchors) == 0 {
		return nil, ErrNoAnchors
	}

	store := NewMemoryStore()
	for _, entry := range file.Anchors {
		cert, err := ParsePEM([]byte(entry.PEM))
		if err != nil {
			return nil, fmt.Errorf("anchor %q: %w", entry.Name, err)
		}
		if err := store.AddAnchor(cert); err != nil {
			return nil, fmt.Errorf("anchor %q: %w", entry.Name, err)
		}
	}
	return store, nil
}

// SaveStore writes the store's anchors to a YAML trust anchor file.
func SaveStore(path string, store Store) error {
	anchors := store.Anchors()
	file := anchorsFile{Anchors: make([]anchorEntry, 0, len(anchors))}
	for _, cert := range anchors {
		file.Anchors = append(file.Anchors, anchorEntry{
			Name: cert.Subject.CommonName,
			PEM:  string(EncodePEM(cert)),
		})
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode trust anchors: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write trust anchors: %w", err)
	}
	return nil
}

// ParsePEM decodes a single PEM-encoded certificate.
func ParsePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: not a PEM certificate", ErrInvalidAnchor)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnchor, err)
	}
	return cert, nil
}

// EncodePEM encodes a certificate to PEM.
func EncodePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}
