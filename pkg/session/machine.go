package session

import (
	"errors"
	"fmt"
)

// Kind identifies a state within a persona's state machine.
// The holder and verifier packages define their own Kind constants.
type Kind uint8

// State is a state value: a kind plus an optional payload.
// Payloads carry state-specific data such as the missing capability set in
// a preflight state, the decrypted request, or the failure classification.
type State struct {
	Kind    Kind
	Payload any
}

// Structural errors. These indicate a defect in the driving orchestrator,
// not a recoverable runtime condition.
var (
	// ErrInvalidTransition indicates a transition request outside the
	// enumerated table, including any transition out of a terminal state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrWrongState indicates an operation attempted outside its
	// required precondition state.
	ErrWrongState = errors.New("operation not valid in current state")
)

// TransitionError reports a rejected transition with the attempted pair.
// It unwraps to ErrInvalidTransition.
type TransitionError struct {
	From Kind
	To   Kind
	name func(Kind) string
}

// Error returns a description naming the attempted (from, to) pair.
func (e *TransitionError) Error() string {
	if e.name != nil {
		return fmt.Sprintf("invalid state transition: %s -> %s", e.name(e.From), e.name(e.To))
	}
	return fmt.Sprintf("invalid state transition: %d -> %d", e.From, e.To)
}

// Unwrap makes errors.Is(err, ErrInvalidTransition) true.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Edges enumerates the legal successor kinds for each kind.
// A kind with no entry (or an empty list) has no outgoing edges and is
// therefore terminal.
type Edges map[Kind][]Kind

// Table is a closed-world transition table. All pairs not explicitly
// enumerated are illegal.
type Table struct {
	allowed map[Kind]map[Kind]struct{}
	name    func(Kind) string
}

// NewTable builds a transition table from enumerated edges.
// The name function is used in error messages and log events; it may be nil.
func NewTable(name func(Kind) string, edges Edges) *Table {
	allowed := make(map[Kind]map[Kind]struct{}, len(edges))
	for from, tos := range edges {
		set := make(map[Kind]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		allowed[from] = set
	}
	return &Table{allowed: allowed, name: name}
}

// Allowed reports whether the (from, to) pair is in the table.
func (t *Table) Allowed(from, to Kind) bool {
	set, ok := t.allowed[from]
	if !ok {
		return false
	}
	_, ok = set[to]
	return ok
}

// Terminal reports whether the kind has no outgoing edges.
func (t *Table) Terminal(k Kind) bool {
	return len(t.allowed[k]) == 0
}

// Name returns the human-readable name for a kind.
func (t *Table) Name(k Kind) string {
	if t.name == nil {
		return fmt.Sprintf("%d", k)
	}
	return t.name(k)
}

// Machine holds a current state and validates transitions against a Table.
// It performs no side effects beyond updating the state; callers serialize
// access.
type Machine struct {
	table *Table
	state State

	// onTransition, if set, is invoked after every successful transition.
	// Intended for observation (protocol logging, UI rendering), never for
	// driving further transitions.
	onTransition func(from, to State)
}

// NewMachine creates a machine in the given initial state.
func NewMachine(table *Table, initial State) *Machine {
	return &Machine{table: table, state: initial}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Kind returns the current state's kind.
func (m *Machine) Kind() Kind { return m.state.Kind }

// Terminal reports whether the machine is in a terminal state.
func (m *Machine) Terminal() bool { return m.table.Terminal(m.state.Kind) }

// OnTransition registers an observer called after each successful transition.
func (m *Machine) OnTransition(fn func(from, to State)) {
	m.onTransition = fn
}

// Transition moves the machine to the target state if the (current, target)
// pair is enumerated in the table. On a rejected request the state is
// unchanged and a *TransitionError is returned; rejection is never silent.
func (m *Machine) Transition(to State) (State, error) {
	if !m.table.Allowed(m.state.Kind, to.Kind) {
		return m.state, &TransitionError{From: m.state.Kind, To: to.Kind, name: m.table.name}
	}
	from := m.state
	m.state = to
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
	return m.state, nil
}

// Require returns ErrWrongState unless the machine is currently in the
// given kind. Used to gate resource injection on precondition states.
func (m *Machine) Require(k Kind) error {
	if m.state.Kind != k {
		return fmt.Errorf("%w: need %s, in %s",
			ErrWrongState, m.table.Name(k), m.table.Name(m.state.Kind))
	}
	return nil
}
