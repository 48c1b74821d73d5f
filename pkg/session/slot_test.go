package session

import (
	"errors"
	"testing"
)

func TestSlotFillOnce(t *testing.T) {
	s := NewSlot[string]("keys")

	if s.Filled() {
		t.Error("Filled() = true on new slot")
	}
	if _, ok := s.Get(); ok {
		t.Error("Get() ok = true on empty slot")
	}

	if err := s.Fill("first"); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	v, ok := s.Get()
	if !ok || v != "first" {
		t.Errorf("Get() = (%q, %v), want (first, true)", v, ok)
	}
}

// TestSlotSealed verifies the second write fails and the first value's
// effect remains observable.
func TestSlotSealed(t *testing.T) {
	s := NewSlot[string]("conn")
	if err := s.Fill("first"); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	err := s.Fill("second")
	if !errors.Is(err, ErrSlotSealed) {
		t.Fatalf("second Fill() error = %v, want ErrSlotSealed", err)
	}

	v, _ := s.Get()
	if v != "first" {
		t.Errorf("Get() after sealed write = %q, want first (no overwrite)", v)
	}
}
