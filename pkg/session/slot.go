package session

import (
	"errors"
	"fmt"
)

// ErrSlotSealed indicates a write to a slot that has already been filled.
// A sealed slot is a security invariant: filling it twice would mean
// resources from one transaction leaking into another. Treat as a defect,
// not a recoverable error.
var ErrSlotSealed = errors.New("resource slot already sealed")

// Slot is a write-once container for an ephemeral session resource.
// It starts empty and transitions to filled exactly once; any further
// write fails with ErrSlotSealed and leaves the first value intact.
type Slot[T any] struct {
	name   string
	filled bool
	value  T
}

// NewSlot creates an empty slot. The name appears in error messages.
func NewSlot[T any](name string) Slot[T] {
	return Slot[T]{name: name}
}

// Fill stores the value. A second call fails with ErrSlotSealed regardless
// of the value, and the first value remains observable.
func (s *Slot[T]) Fill(v T) error {
	if s.filled {
		return fmt.Errorf("%w: %s", ErrSlotSealed, s.name)
	}
	s.value = v
	s.filled = true
	return nil
}

// Get returns the stored value and whether the slot has been filled.
func (s *Slot[T]) Get() (T, bool) {
	return s.value, s.filled
}

// Filled reports whether the slot has been written.
func (s *Slot[T]) Filled() bool { return s.filled }
