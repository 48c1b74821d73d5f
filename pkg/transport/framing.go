package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize is the default maximum message size (64 KB).
	DefaultMaxMessageSize = 65536
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates the message exceeds the maximum size.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty indicates an empty message.
	ErrMessageEmpty = errors.New("message is empty")
)

// Framer provides length-prefixed frame I/O over a stream, standing in for
// the message boundaries a BLE GATT characteristic provides natively.
type Framer struct {
	mu             sync.Mutex
	rw             io.ReadWriter
	maxMessageSize uint32
}

// NewFramer creates a framer with the default maximum message size.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{rw: rw, maxMessageSize: DefaultMaxMessageSize}
}

// WriteFrame writes one length-prefixed frame.
func (f *Framer) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > f.maxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := f.rw.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := f.rw.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame.
func (f *Framer) ReadFrame() ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(f.rw, prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > f.maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(f.rw, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return data, nil
}
