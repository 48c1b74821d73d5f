package verifier

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
)

// Session holds the state and ephemeral resources of one verification
// attempt. Like its holder counterpart it is passive and write-once: the
// crypto context and connection handle slots seal after the first fill,
// and Close tears everything down exactly once.
type Session struct {
	mu      sync.Mutex
	id      string
	machine *session.Machine

	crypto session.Slot[*sessioncrypto.Context]
	conn   session.Slot[*transport.Handle]

	resources session.Resources
	closed    bool
}

// NewSession creates a session in NotStarted.
func NewSession(plog log.Logger) *Session {
	s := &Session{
		id:      uuid.New().String(),
		machine: session.NewMachine(Transitions, session.State{Kind: StateNotStarted}),
		crypto:  session.NewSlot[*sessioncrypto.Context]("session crypto context"),
		conn:    session.NewSlot[*transport.Handle]("connection handle"),
	}
	s.machine.OnTransition(func(from, to session.State) {
		plog.Log(log.NewStateChange(s.id, log.RoleVerifier, StateName(from.Kind), StateName(to.Kind)))
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Kind returns the current state's kind.
func (s *Session) Kind() session.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Kind()
}

// Terminal reports whether the session has reached a terminal state.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Terminal()
}

// Transition moves the session to the target state.
func (s *Session) Transition(to session.State) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Transition(to)
}

// SetCryptoContext installs the session crypto context. Only valid in
// ProcessingEngagement.
func (s *Session) SetCryptoContext(c *sessioncrypto.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Require(StateProcessingEngagement); err != nil {
		return err
	}
	return s.crypto.Fill(c)
}

// CryptoContext returns the installed crypto context, if any.
func (s *Session) CryptoContext() (*sessioncrypto.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crypto.Get()
}

// SetConnectionHandle installs the holder connection handle. Only valid in
// Connecting.
func (s *Session) SetConnectionHandle(h *transport.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Require(StateConnecting); err != nil {
		return err
	}
	if err := s.conn.Fill(h); err != nil {
		return err
	}
	s.resources.Attach(h)
	return nil
}

// ConnectionHandle returns the holder connection handle, if any.
func (s *Session) ConnectionHandle() (*transport.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Get()
}

// Close releases every attached resource exactly once and wipes the
// session keys. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.resources.ReleaseAll()
	if c, ok := s.crypto.Get(); ok && c != nil {
		c.Wipe()
	}
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
