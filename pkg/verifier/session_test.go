package verifier

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
		StateNotStarted, StatePreflight, StateReadyToScan,
		StateProcessingEngagement, StateConnecting, StateVerifying,
	}
	for _, k := range nonTerminal {
		if !Transitions.Allowed(k, StateCancelled) {
			t.Errorf("Cancelled should be reachable from %s", StateName(k))
		}
		if !Transitions.Allowed(k, StateFailed) {
			t.Errorf("Failed should be reachable from %s", StateName(k))
		}
	}

	if Transitions.Allowed(StateReadyToScan, StateVerifying) {
		t.Error("skipping engagement processing must not be allowed")
	}
	if Transitions.Allowed(StateCancelled, StateReadyToScan) {
		t.Error("transitions out of terminal states must not be allowed")
	}
}

func TestSessionGatingAndTeardown(t *testing.T) {
	s := NewSession(log.NoopLogger{})

	h := transport.NewHandle("conn-1", transport.HandleConnection, nil)
	if err := s.SetConnectionHandle(h); !errors.Is(err, session.ErrWrongState) {
		t.Fatalf("SetConnectionHandle in NotStarted: got %v, want ErrWrongState", err)
	}

	for _, k := range []session.Kind{StateReadyToScan, StateProcessingEngagement} {
		if _, err := s.Transition(session.State{Kind: k}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetCryptoContext(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCryptoContext(nil); !errors.Is(err, session.ErrSlotSealed) {
		t.Fatalf("second SetCryptoContext: got %v, want ErrSlotSealed", err)
	}

	if _, err := s.Transition(session.State{Kind: StateConnecting}); err != nil {
		t.Fatal(err)
	}
	released := 0
	conn := transport.NewHandle("conn-2", transport.HandleConnection, func() { released++ })
	if err := s.SetConnectionHandle(conn); err != nil {
		t.Fatal(err)
	}

	s.Close()
	s.Close()
	if released != 1 {
		t.Fatalf("connection released %d times, want 1", released)
	}
}
