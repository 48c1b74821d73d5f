package capability

import (
	"context"
	"testing"
)

func TestSetContains(t *testing.T) {
	s := NewSet(Bluetooth, Location)

	if !s.Contains(Bluetooth) {
		t.Error("Contains(Bluetooth) = false, want true")
	}
	if s.Contains(Camera) {
		t.Error("Contains(Camera) = true, want false")
	}
	if s.Empty() {
		t.Error("Empty() = true, want false")
	}
}

func TestSetString(t *testing.T) {
	s := NewSet(Location, Bluetooth)
	if got := s.String(); got != "BLUETOOTH,LOCATION" {
		t.Errorf("String() = %q, want BLUETOOTH,LOCATION", got)
	}
	if got := NewSet().String(); got != "" {
		t.Errorf("empty String() = %q, want empty", got)
	}
}

func TestGrantedGate(t *testing.T) {
	var g GrantedGate
	missing, err := g.CheckCapabilities(context.Background())
	if err != nil {
		t.Fatalf("CheckCapabilities() error = %v", err)
	}
	if !missing.Empty() {
		t.Errorf("CheckCapabilities() = %v, want empty", missing)
	}

	granted, err := g.RequestAuthorization(context.Background(), Camera)
	if err != nil || !granted {
		t.Errorf("RequestAuthorization() = (%v, %v), want (true, nil)", granted, err)
	}
}
