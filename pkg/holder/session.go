package holder

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
)

// Session holds the state and ephemeral resources of one presentation
// attempt. It is passive: all transitions and resource injections are
// driven by the Orchestrator. Methods are safe for concurrent use; the
// internal mutex serializes transitions so no two run concurrently and
// no transition interleaves with a resource write.
//
// Resource setters are gated on precondition states and write-once: a
// second write to the same slot fails with session.ErrSlotSealed even if
// the state would allow it.
type Session struct {
	mu      sync.Mutex
	id      string
	machine *session.Machine

	crypto  session.Slot[*sessioncrypto.Context]
	conn    session.Slot[*transport.Handle]
	request session.Slot[*ConsentRequest]

	resources session.Resources
	closed    bool
}

// NewSession creates a session in NotStarted. State changes are reported
// to the protocol logger; pass log.NoopLogger{} to discard them.
func NewSession(plog log.Logger) *Session {
	s := &Session{
		id:      uuid.New().String(),
		machine: session.NewMachine(Transitions, session.State{Kind: StateNotStarted}),
		crypto:  session.NewSlot[*sessioncrypto.Context]("session crypto context"),
		conn:    session.NewSlot[*transport.Handle]("connection handle"),
		request: session.NewSlot[*ConsentRequest]("request payload"),
	}
	s.machine.OnTransition(func(from, to session.State) {
		plog.Log(log.NewStateChange(s.id, log.RoleHolder, StateName(from.Kind), StateName(to.Kind)))
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

// Transition moves the session to the target state. Illegal transitions
// are rejected with a *session.TransitionError and leave the state
// unchanged.
func (s *Session) Transition(to session.State) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Transition(to)
}

// SetCryptoContext installs the session crypto context. Only valid in
// ReadyToPresent, before the engagement is shown.
func (s *Session) SetCryptoContext(c *sessioncrypto.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Require(StateReadyToPresent); err != nil {
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

// AdoptAdvertising attaches the advertising handle for teardown. Only
// valid in PresentingEngagement.
func (s *Session) AdoptAdvertising(h *transport.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Require(StatePresentingEngagement); err != nil {
		return err
	}
	s.resources.Attach(h)
	return nil
}

// SetConnectionHandle installs the verifier connection handle. Only valid
// in Connecting.
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

// ConnectionHandle returns the verifier connection handle, if any.
func (s *Session) ConnectionHandle() (*transport.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Get()
}

// SetRequest installs the decrypted consent request. Only valid in
// Connecting, before the transition to RequestReceived.
func (s *Session) SetRequest(r *ConsentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Require(StateConnecting); err != nil {
		return err
	}
	return s.request.Fill(r)
}

// Request returns the installed consent request, if any.
func (s *Session) Request() (*ConsentRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request.Get()
}

// Close releases every attached resource exactly once and wipes the
// session keys. Idempotent. The orchestrator calls Close on every exit
// path, terminal or abandoned; state remains observable afterwards.
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
