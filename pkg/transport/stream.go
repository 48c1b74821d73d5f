package transport

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Stream is a Transport over a stream network, used by the two-process
// demo binaries as a stand-in for a BLE radio stack. Advertising maps to
// listening, connecting to dialing, and messages are length-prefixed
// frames. One connection at a time, mirroring a single proximity
// transaction.
type Stream struct {
	// Addr is the listen address (advertiser) or dial address (dialer).
	addr string

	mu       sync.Mutex
	handler  func(Event)
	listener net.Listener
	conn     net.Conn
	framer   *Framer
	connID   string

	events chan Event
	done   chan struct{}
	closed bool
}

// NewStream creates a stream transport bound to the given address.
func NewStream(addr string) *Stream {
	s := &Stream{
		addr:   addr,
		events: make(chan Event, eventQueueSize),
		done:   make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// OnEvent registers the event handler.
func (s *Stream) OnEvent(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// dispatch delivers queued events serially. Events are never delivered on
// the goroutine that triggered them, so a handler releasing a connection
// handle cannot re-enter itself on the resulting disconnect.
func (s *Stream) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.mu.Lock()
			handler := s.handler
			s.mu.Unlock()
			if handler != nil {
				handler(ev)
			}
		}
	}
}

func (s *Stream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Close stops event delivery and tears down the listener and any active
// connection. Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	connID := s.connID
	s.mu.Unlock()

	s.StopAdvertising()
	if connID != "" {
		s.dropConn(connID)
	}
	close(s.done)
}

// StartAdvertising listens on the configured address and accepts one
// connection in the background. The service UUID has no on-wire role
// here; the address plays its part.
func (s *Stream) StartAdvertising(ctx context.Context, serviceUUID uuid.UUID) (*Handle, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go s.accept(listener)

	return NewHandle(serviceUUID.String(), HandleAdvertising, func() {
		s.StopAdvertising()
	}), nil
}

func (s *Stream) accept(listener net.Listener) {
	conn, err := listener.Accept()
	if err != nil {
		return
	}

	connID := uuid.New().String()
	s.mu.Lock()
	s.conn = conn
	s.framer = NewFramer(conn)
	s.connID = connID
	s.mu.Unlock()

	handle := NewHandle(connID, HandleConnection, func() {
		s.Disconnect(connID)
	})
	s.emit(Event{Type: EventConnected, ConnID: connID, Handle: handle})

	s.readLoop(connID)
}

// Connect dials the configured address.
func (s *Stream) Connect(ctx context.Context, serviceUUID uuid.UUID) (*Handle, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}

	connID := uuid.New().String()
	s.mu.Lock()
	s.conn = conn
	s.framer = NewFramer(conn)
	s.connID = connID
	s.mu.Unlock()

	go s.readLoop(connID)

	return NewHandle(connID, HandleConnection, func() {
		s.Disconnect(connID)
	}), nil
}

func (s *Stream) readLoop(connID string) {
	for {
		s.mu.Lock()
		framer := s.framer
		s.mu.Unlock()
		if framer == nil {
			return
		}

		data, err := framer.ReadFrame()
		if err != nil {
			s.dropConn(connID)
			return
		}
		s.emit(Event{Type: EventMessage, ConnID: connID, Data: data})
	}
}

// Send writes one frame on the active connection.
func (s *Stream) Send(connID string, data []byte) error {
	s.mu.Lock()
	framer := s.framer
	active := s.connID
	s.mu.Unlock()

	if framer == nil || active != connID {
		return ErrUnknownConn
	}
	return framer.WriteFrame(data)
}

// Disconnect closes the active connection. Idempotent.
func (s *Stream) Disconnect(connID string) {
	s.dropConn(connID)
}

func (s *Stream) dropConn(connID string) {
	s.mu.Lock()
	if s.connID != connID || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.framer = nil
	s.connID = ""
	s.mu.Unlock()

	_ = conn.Close()
	s.emit(Event{Type: EventDisconnected, ConnID: connID})
}

// StopAdvertising closes the listener. Idempotent.
func (s *Stream) StopAdvertising() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
}
