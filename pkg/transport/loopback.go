package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// eventQueueSize bounds the per-endpoint event queue. A presentation
// exchanges a handful of messages; the queue only needs to absorb bursts.
const eventQueueSize = 64

// Loopback is an in-process transport bus. Endpoints created from the same
// bus can find each other's advertised services and exchange messages.
type Loopback struct {
	mu          sync.Mutex
	advertisers map[uuid.UUID]*Endpoint
	conns       map[string]*loopConn
}

// loopConn is one established pairing between two endpoints.
type loopConn struct {
	id       string
	accepter *Endpoint
	dialer   *Endpoint
	closed   bool
}

// NewLoopback creates an empty bus.
func NewLoopback() *Loopback {
	return &Loopback{
		advertisers: make(map[uuid.UUID]*Endpoint),
		conns:       make(map[string]*loopConn),
	}
}

// Endpoint creates a transport endpoint attached to the bus. The name
// appears only in diagnostics.
func (l *Loopback) Endpoint(name string) *Endpoint {
	ep := &Endpoint{
		bus:    l,
		name:   name,
		events: make(chan Event, eventQueueSize),
		done:   make(chan struct{}),
	}
	go ep.dispatch()
	return ep
}

// Endpoint is one side of the loopback transport.
type Endpoint struct {
	bus  *Loopback
	name string

	mu      sync.Mutex
	handler func(Event)

	events chan Event
	done   chan struct{}
	closed bool
}

// OnEvent registers the event handler.
func (e *Endpoint) OnEvent(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = fn
}

// dispatch delivers queued events serially, preserving per-connection
// ordering without re-entering the caller of Send.
func (e *Endpoint) dispatch() {
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.events:
			e.mu.Lock()
			handler := e.handler
			e.mu.Unlock()
			if handler != nil {
				handler(ev)
			}
		}
	}
}

// deliver queues an event for the endpoint's handler.
func (e *Endpoint) deliver(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// StartAdvertising registers the endpoint as the advertiser for the
// service UUID and returns a handle owning the advertising registration.
func (e *Endpoint) StartAdvertising(_ context.Context, serviceUUID uuid.UUID) (*Handle, error) {
	e.bus.mu.Lock()
	e.bus.advertisers[serviceUUID] = e
	e.bus.mu.Unlock()

	return NewHandle(serviceUUID.String(), HandleAdvertising, func() {
		e.stopAdvertising(serviceUUID)
	}), nil
}

// StopAdvertising removes all of the endpoint's advertised services.
func (e *Endpoint) StopAdvertising() {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	for id, ep := range e.bus.advertisers {
		if ep == e {
			delete(e.bus.advertisers, id)
		}
	}
}

func (e *Endpoint) stopAdvertising(serviceUUID uuid.UUID) {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	if e.bus.advertisers[serviceUUID] == e {
		delete(e.bus.advertisers, serviceUUID)
	}
}

// Connect pairs with the advertiser of the service UUID. The advertiser
// receives an EventConnected carrying its own handle for the connection.
func (e *Endpoint) Connect(_ context.Context, serviceUUID uuid.UUID) (*Handle, error) {
	e.bus.mu.Lock()
	accepter, ok := e.bus.advertisers[serviceUUID]
	if !ok {
		e.bus.mu.Unlock()
		return nil, ErrNoAdvertiser
	}

	connID := uuid.New().String()
	e.bus.conns[connID] = &loopConn{id: connID, accepter: accepter, dialer: e}
	e.bus.mu.Unlock()

	accepterHandle := NewHandle(connID, HandleConnection, func() {
		e.bus.disconnect(connID)
	})
	accepter.deliver(Event{Type: EventConnected, ConnID: connID, Handle: accepterHandle})

	return NewHandle(connID, HandleConnection, func() {
		e.bus.disconnect(connID)
	}), nil
}

// Send delivers a message to the peer endpoint of the connection.
func (e *Endpoint) Send(connID string, data []byte) error {
	e.bus.mu.Lock()
	conn, ok := e.bus.conns[connID]
	if !ok || conn.closed {
		e.bus.mu.Unlock()
		if !ok {
			return ErrUnknownConn
		}
		return ErrConnClosed
	}
	peer := conn.accepter
	if peer == e {
		peer = conn.dialer
	}
	e.bus.mu.Unlock()

	msg := make([]byte, len(data))
	copy(msg, data)
	peer.deliver(Event{Type: EventMessage, ConnID: connID, Data: msg})
	return nil
}

// Disconnect closes the connection; both endpoints receive an
// EventDisconnected. Idempotent.
func (e *Endpoint) Disconnect(connID string) {
	e.bus.disconnect(connID)
}

func (l *Loopback) disconnect(connID string) {
	l.mu.Lock()
	conn, ok := l.conns[connID]
	if !ok || conn.closed {
		l.mu.Unlock()
		return
	}
	conn.closed = true
	delete(l.conns, connID)
	l.mu.Unlock()

	ev := Event{Type: EventDisconnected, ConnID: connID}
	conn.accepter.deliver(ev)
	conn.dialer.deliver(ev)
}

// Close shuts the endpoint's dispatcher down. Pending events are dropped.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}
