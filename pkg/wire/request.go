package wire

import (
	"errors"
	"fmt"
)

// RequestVersion is the device request structure version.
const RequestVersion = "1.0"

// ErrInvalidRequest indicates a malformed device request.
var ErrInvalidRequest = errors.New("invalid device request")

// DeviceRequest is the verifier's attribute request, carried encrypted
// inside the session establishment message.
type DeviceRequest struct {
	Version     string       `cbor:"version"`
	DocRequests []DocRequest `cbor:"docRequests"`
}

// DocRequest requests items from one document type.
type DocRequest struct {
	ItemsRequest ItemsRequest `cbor:"itemsRequest"`
}

// ItemsRequest names a document type and the requested data elements per
// namespace. The bool per element is the intent-to-retain flag: whether the
// verifier intends to store the value beyond the transaction.
type ItemsRequest struct {
	DocType    string                     `cbor:"docType"`
	NameSpaces map[string]map[string]bool `cbor:"nameSpaces"`
}

// NewRequest builds a single-document request.
func NewRequest(docType string, namespaces map[string]map[string]bool) *DeviceRequest {
	return &DeviceRequest{
		Version: RequestVersion,
		DocRequests: []DocRequest{{
			ItemsRequest: ItemsRequest{
				DocType:    docType,
				NameSpaces: namespaces,
			},
		}},
	}
}

// Validate checks the structural requirements of a request.
func (dr *DeviceRequest) Validate() error {
	if dr.Version != RequestVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidRequest, dr.Version)
	}
	if len(dr.DocRequests) == 0 {
		return fmt.Errorf("%w: no document requests", ErrInvalidRequest)
	}
	for i, doc := range dr.DocRequests {
		if doc.ItemsRequest.DocType == "" {
			return fmt.Errorf("%w: docRequest %d missing docType", ErrInvalidRequest, i)
		}
		if len(doc.ItemsRequest.NameSpaces) == 0 {
			return fmt.Errorf("%w: docRequest %d requests no elements", ErrInvalidRequest, i)
		}
	}
	return nil
}

// EncodeRequest encodes a device request.
func EncodeRequest(dr *DeviceRequest) ([]byte, error) {
	if err := dr.Validate(); err != nil {
		return nil, err
	}
	return Marshal(dr)
}

// DecodeRequest decodes and validates a device request.
func DecodeRequest(data []byte) (*DeviceRequest, error) {
	var dr DeviceRequest
	if err := Unmarshal(data, &dr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := dr.Validate(); err != nil {
		return nil, err
	}
	return &dr, nil
}
