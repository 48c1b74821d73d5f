package session

import (
	"errors"
	"testing"
)

// A small three-phase machine used throughout these tests.
const (
	kindStart Kind = iota
	kindWorking
	kindDone
	kindFailed
)

func kindName(k Kind) string {
	switch k {
	case kindStart:
		return "START"
	case kindWorking:
		return "WORKING"
	case kindDone:
		return "DONE"
	case kindFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func testTable() *Table {
	return NewTable(kindName, Edges{
		kindStart:   {kindWorking, kindFailed},
		kindWorking: {kindDone, kindFailed},
	})
}

func TestMachineInitialState(t *testing.T) {
	m := NewMachine(testTable(), State{Kind: kindStart})

	if m.Kind() != kindStart {
		t.Errorf("Kind() = %v, want kindStart", m.Kind())
	}
	if m.Terminal() {
		t.Error("Terminal() = true for initial state, want false")
	}
}

func TestMachineLegalTransition(t *testing.T) {
	m := NewMachine(testTable(), State{Kind: kindStart})

	got, err := m.Transition(State{Kind: kindWorking, Payload: "payload"})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if got.Kind != kindWorking {
		t.Errorf("Transition() kind = %v, want kindWorking", got.Kind)
	}
	if got.Payload != "payload" {
		t.Errorf("Transition() payload = %v, want %q", got.Payload, "payload")
	}
}

// TestMachineClosedWorld verifies that every (from, to) pair not enumerated
// in the table is rejected and leaves the state unchanged.
func TestMachineClosedWorld(t *testing.T) {
	table := testTable()
	kinds := []Kind{kindStart, kindWorking, kindDone, kindFailed}

	for _, from := range kinds {
		for _, to := range kinds {
			if table.Allowed(from, to) {
				continue
			}
			m := NewMachine(table, State{Kind: from})
			_, err := m.Transition(State{Kind: to})
			if err == nil {
				t.Errorf("Transition(%s -> %s) succeeded, want rejection",
					kindName(from), kindName(to))
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%s -> %s) error = %v, want ErrInvalidTransition",
					kindName(from), kindName(to), err)
			}
			if m.Kind() != from {
				t.Errorf("state changed on rejected transition: %v", m.Kind())
			}
		}
	}
}

// TestMachineTerminalStates verifies no transition out of a terminal state
// succeeds, including self-transitions.
func TestMachineTerminalStates(t *testing.T) {
	table := testTable()
	for _, terminal := range []Kind{kindDone, kindFailed} {
		if !table.Terminal(terminal) {
			t.Fatalf("Terminal(%s) = false, want true", kindName(terminal))
		}
		m := NewMachine(table, State{Kind: terminal})
		for _, to := range []Kind{kindStart, kindWorking, kindDone, kindFailed} {
			if _, err := m.Transition(State{Kind: to}); err == nil {
				t.Errorf("transition out of terminal %s to %s succeeded",
					kindName(terminal), kindName(to))
			}
		}
	}
}

func TestMachineTransitionError(t *testing.T) {
	m := NewMachine(testTable(), State{Kind: kindDone})

	_, err := m.Transition(State{Kind: kindStart})
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransitionError", err)
	}
	if te.From != kindDone || te.To != kindStart {
		t.Errorf("TransitionError pair = (%v, %v), want (kindDone, kindStart)", te.From, te.To)
	}
	want := "invalid state transition: DONE -> START"
	if te.Error() != want {
		t.Errorf("Error() = %q, want %q", te.Error(), want)
	}
}

func TestMachineOnTransition(t *testing.T) {
	m := NewMachine(testTable(), State{Kind: kindStart})

	var observed []Kind
	m.OnTransition(func(from, to State) {
		observed = append(observed, from.Kind, to.Kind)
	})

	// Rejected transitions must not notify.
	m.Transition(State{Kind: kindDone})
	if len(observed) != 0 {
		t.Fatalf("observer called on rejected transition")
	}

	m.Transition(State{Kind: kindWorking})
	m.Transition(State{Kind: kindDone})
	want := []Kind{kindStart, kindWorking, kindWorking, kindDone}
	if len(observed) != len(want) {
		t.Fatalf("observed %v, want %v", observed, want)
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("observed[%d] = %v, want %v", i, observed[i], want[i])
		}
	}
}

func TestMachineRequire(t *testing.T) {
	m := NewMachine(testTable(), State{Kind: kindStart})

	if err := m.Require(kindStart); err != nil {
		t.Errorf("Require(current) error = %v", err)
	}
	err := m.Require(kindWorking)
	if !errors.Is(err, ErrWrongState) {
		t.Errorf("Require(other) error = %v, want ErrWrongState", err)
	}
}
