package holder

import (
	"errors"
	"testing"

	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
)

func TestTransitionTable(t *testing.T) {
	terminal := []session.Kind{StateSuccess, StateFailed, StateCancelled}
	for _, k := range terminal {
		if !Transitions.Terminal(k) {
			t.Errorf("%s should be terminal", StateName(k))
		}
	}

	nonTerminal := []session.Kind{
		StateNotStarted, StatePreflight, StateReadyToPresent,
		StatePresentingEngagement, StateConnecting,
		StateRequestReceived, StateProcessingResponse,
	}
	for _, k := range nonTerminal {
		if Transitions.Terminal(k) {
			t.Errorf("%s should not be terminal", StateName(k))
		}
		if !Transitions.Allowed(k, StateCancelled) {
			t.Errorf("Cancelled should be reachable from %s", StateName(k))
		}
		if !Transitions.Allowed(k, StateFailed) {
			t.Errorf("Failed should be reachable from %s", StateName(k))
		}
	}

	if Transitions.Allowed(StateNotStarted, StateRequestReceived) {
		t.Error("skipping engagement must not be allowed")
	}
	if Transitions.Allowed(StateSuccess, StatePreflight) {
		t.Error("transitions out of terminal states must not be allowed")
	}
	if !Transitions.Allowed(StatePreflight, StatePreflight) {
		t.Error("preflight re-check must be allowed")
	}
}

func TestSessionGatedSetters(t *testing.T) {
	s := NewSession(log.NoopLogger{})

	// Connection handle before Connecting is a structural error.
	h := transport.NewHandle("conn-1", transport.HandleConnection, nil)
	if err := s.SetConnectionHandle(h); !errors.Is(err, session.ErrWrongState) {
		t.Fatalf("SetConnectionHandle in NotStarted: got %v, want ErrWrongState", err)
	}

	if _, err := s.Transition(session.State{Kind: StateReadyToPresent}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCryptoContext(nil); err != nil {
		t.Fatalf("SetCryptoContext in ReadyToPresent: %v", err)
	}
	if err := s.SetCryptoContext(nil); !errors.Is(err, session.ErrSlotSealed) {
		t.Fatalf("second SetCryptoContext: got %v, want ErrSlotSealed", err)
	}

	if _, err := s.Transition(session.State{Kind: StatePresentingEngagement}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition(session.State{Kind: StateConnecting}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetConnectionHandle(h); err != nil {
		t.Fatalf("SetConnectionHandle in Connecting: %v", err)
	}
	if err := s.SetConnectionHandle(h); !errors.Is(err, session.ErrSlotSealed) {
		t.Fatalf("second SetConnectionHandle: got %v, want ErrSlotSealed", err)
	}
}

func TestSessionCloseReleasesOnce(t *testing.T) {
	s := NewSession(log.NoopLogger{})
	if _, err := s.Transition(session.State{Kind: StateReadyToPresent}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition(session.State{Kind: StatePresentingEngagement}); err != nil {
		t.Fatal(err)
	}

	released := 0
	h := transport.NewHandle("adv-1", transport.HandleAdvertising, func() { released++ })
	if err := s.AdoptAdvertising(h); err != nil {
		t.Fatal(err)
	}

	s.Close()
	s.Close()
	if released != 1 {
		t.Fatalf("advertising released %d times, want 1", released)
	}
	if !s.Closed() {
		t.Error("session should report closed")
	}

	// State stays observable after teardown.
	if s.Kind() != StatePresentingEngagement {
		t.Errorf("state after close: %s", StateName(s.Kind()))
	}
}

func TestSessionRejectsIllegalTransition(t *testing.T) {
	s := NewSession(log.NoopLogger{})
	before := s.Kind()
	_, err := s.Transition(session.State{Kind: StateProcessingResponse})
	if !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if s.Kind() != before {
		t.Error("rejected transition must leave state unchanged")
	}
}
