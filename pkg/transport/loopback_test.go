package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// collectEvents registers a handler that forwards events to a channel.
func collectEvents(ep *Endpoint) chan Event {
	ch := make(chan Event, 16)
	ep.OnEvent(func(ev Event) { ch <- ev })
	return ch
}

func waitEvent(t *testing.T, ch chan Event, want EventType) Event {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Type != want {
			t.Fatalf("event type = %v, want %v", ev.Type, want)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %v", want)
		return Event{}
	}
}

func TestLoopbackConnectAndSend(t *testing.T) {
	bus := NewLoopback()
	holder := bus.Endpoint("holder")
	verifier := bus.Endpoint("verifier")
	defer holder.Close()
	defer verifier.Close()

	holderEvents := collectEvents(holder)
	verifierEvents := collectEvents(verifier)

	serviceUUID := uuid.New()
	adv, err := holder.StartAdvertising(context.Background(), serviceUUID)
	if err != nil {
		t.Fatalf("StartAdvertising() error = %v", err)
	}
	defer adv.Release()

	conn, err := verifier.Connect(context.Background(), serviceUUID)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	connected := waitEvent(t, holderEvents, EventConnected)
	if connected.Handle == nil {
		t.Fatal("EventConnected without handle")
	}
	if connected.ConnID != conn.ID() {
		t.Errorf("conn IDs differ across sides: %q vs %q", connected.ConnID, conn.ID())
	}

	// Verifier to holder.
	if err := verifier.Send(conn.ID(), []byte("establishment")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msg := waitEvent(t, holderEvents, EventMessage)
	if string(msg.Data) != "establishment" {
		t.Errorf("holder received %q, want establishment", msg.Data)
	}

	// Holder to verifier.
	if err := holder.Send(conn.ID(), []byte("response")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msg = waitEvent(t, verifierEvents, EventMessage)
	if string(msg.Data) != "response" {
		t.Errorf("verifier received %q, want response", msg.Data)
	}
}

func TestLoopbackConnectNoAdvertiser(t *testing.T) {
	bus := NewLoopback()
	verifier := bus.Endpoint("verifier")
	defer verifier.Close()

	if _, err := verifier.Connect(context.Background(), uuid.New()); !errors.Is(err, ErrNoAdvertiser) {
		t.Errorf("Connect() error = %v, want ErrNoAdvertiser", err)
	}
}

func TestLoopbackAdvertisingHandleRelease(t *testing.T) {
	bus := NewLoopback()
	holder := bus.Endpoint("holder")
	verifier := bus.Endpoint("verifier")
	defer holder.Close()
	defer verifier.Close()

	serviceUUID := uuid.New()
	adv, _ := holder.StartAdvertising(context.Background(), serviceUUID)
	adv.Release()

	if _, err := verifier.Connect(context.Background(), serviceUUID); !errors.Is(err, ErrNoAdvertiser) {
		t.Errorf("Connect() after advertising release = %v, want ErrNoAdvertiser", err)
	}
}

func TestLoopbackDisconnectNotifiesBothSides(t *testing.T) {
	bus := NewLoopback()
	holder := bus.Endpoint("holder")
	verifier := bus.Endpoint("verifier")
	defer holder.Close()
	defer verifier.Close()

	holderEvents := collectEvents(holder)
	verifierEvents := collectEvents(verifier)

	serviceUUID := uuid.New()
	adv, _ := holder.StartAdvertising(context.Background(), serviceUUID)
	defer adv.Release()
	conn, _ := verifier.Connect(context.Background(), serviceUUID)
	holderConn := waitEvent(t, holderEvents, EventConnected)

	// Releasing the holder-side handle tears the connection down for both.
	holderConn.Handle.Release()

	waitEvent(t, holderEvents, EventDisconnected)
	waitEvent(t, verifierEvents, EventDisconnected)

	// Sends on the dead connection fail.
	if err := verifier.Send(conn.ID(), []byte("late")); err == nil {
		t.Error("Send() after disconnect succeeded, want error")
	}

	// Idempotent: releasing the other side's handle is a no-op.
	conn.Release()
	holder.Disconnect(conn.ID())
}
