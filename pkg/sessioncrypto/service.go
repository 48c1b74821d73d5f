package sessioncrypto

import (
	"crypto/ecdsa"

	"github.com/google/uuid"

	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

// Service is the concrete crypto collaborator consumed by the holder and
// verifier orchestrators. It is stateless; all per-transaction state lives
// in the Context owned by the session.
type Service struct{}

// NewService creates the crypto service.
func NewService() *Service {
	return &Service{}
}

// NewHolderContext generates the holder's engagement material: an ephemeral
// key pair and the canonical engagement bytes advertising it.
func (s *Service) NewHolderContext(serviceUUID uuid.UUID) (*Context, []byte, error) {
	return NewHolderContext(serviceUUID)
}

// NewReaderContext decodes a scanned engagement and derives session keys.
func (s *Service) NewReaderContext(engagementBytes []byte) (*Context, *wire.DeviceEngagement, error) {
	return NewReaderContext(engagementBytes)
}

// SignDeviceAuth produces the holder's per-transaction document signature.
func (s *Service) SignDeviceAuth(deviceKey *ecdsa.PrivateKey, transcriptBytes []byte, docType string) (*wire.DeviceAuth, error) {
	return SignDeviceAuth(deviceKey, transcriptBytes, docType)
}

// VerifyDeviceAuth checks the holder's document signature.
func (s *Service) VerifyDeviceAuth(doc *wire.Document, transcriptBytes []byte) error {
	return VerifyDeviceAuth(doc.IssuerAuth.DeviceKeyBytes, transcriptBytes, doc)
}
