package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mdoc-protocol/mdoc-go/pkg/capability"
	"github.com/mdoc-protocol/mdoc-go/pkg/holder"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
	"github.com/mdoc-protocol/mdoc-go/pkg/trust"
	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

const (
	testDocType   = "org.iso.18013.5.1.mDL"
	testNamespace = "org.iso.18013.5.1"
)

// stubCamera returns a fixed QR payload.
type stubCamera struct{ qr string }

func (c stubCamera) Scan(context.Context) (string, error) { return c.qr, nil }

func testRequest() *wire.DeviceRequest {
	return wire.NewRequest(testDocType, map[string]map[string]bool{
		testNamespace: {"age_over_18": false},
	})
}

func waitForKind(t *testing.T, o *Orchestrator, want session.Kind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.Session().Kind() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s, in %s", StateName(want), StateName(o.Session().Kind()))
}

func waitEvent(t *testing.T, ch <-chan transport.Event, want transport.EventType) transport.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

// scriptedHolder advertises an engagement and answers the establishment
// message with a signed response, driving the holder side by hand.
type scriptedHolder struct {
	t          *testing.T
	ep         transport.Transport
	events     chan transport.Event
	cctx       *sessioncrypto.Context
	cred       *holder.Credential
	qr         string
	tamperItem bool
}

func newScriptedHolder(t *testing.T, ep transport.Transport, signer *trust.Signer) *scriptedHolder {
	t.Helper()
	cred, err := holder.Issue(signer, testDocType, map[string]map[string]any{
		testNamespace: {"age_over_18": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := &scriptedHolder{t: t, ep: ep, events: make(chan transport.Event, 16), cred: cred}
	ep.OnEvent(func(ev transport.Event) { h.events <- ev })

	serviceUUID := uuid.New()
	cctx, engagementBytes, err := sessioncrypto.NewHolderContext(serviceUUID)
	if err != nil {
		t.Fatal(err)
	}
	h.cctx = cctx
	h.qr = wire.EncodeQR(engagementBytes)
	if _, err := ep.StartAdvertising(context.Background(), serviceUUID); err != nil {
		t.Fatal(err)
	}
	return h
}

// respond waits for the establishment message and sends back a response
// disclosing age_over_18.
func (h *scriptedHolder) respond() {
	h.t.Helper()
	ev := waitEvent(h.t, h.events, transport.EventConnected)
	connID := ev.ConnID
	ev = waitEvent(h.t, h.events, transport.EventMessage)

	se, err := wire.DecodeEstablishment(ev.Data)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.cctx.Establish(se.EReaderKey); err != nil {
		h.t.Fatal(err)
	}
	if _, err := h.cctx.Decrypt(se.Data); err != nil {
		h.t.Fatal(err)
	}

	disclosed := h.cred.Disclose(holder.Selection{testNamespace: {"age_over_18"}})
	if h.tamperItem {
		disclosed[testNamespace][0].Value = false
	}
	deviceAuth, err := sessioncrypto.SignDeviceAuth(h.cred.DeviceKey, h.cctx.TranscriptBytes(), testDocType)
	if err != nil {
		h.t.Fatal(err)
	}
	resp := &wire.DeviceResponse{
		Version: wire.ResponseVersion,
		Documents: []wire.Document{{
			DocType:    testDocType,
			NameSpaces: disclosed,
			IssuerAuth: h.cred.IssuerAuth,
			DeviceAuth: *deviceAuth,
		}},
		Status: wire.ResponseStatusOK,
	}
	respBytes, err := wire.EncodeResponse(resp)
	if err != nil {
		h.t.Fatal(err)
	}
	ciphertext, err := h.cctx.Encrypt(respBytes)
	if err != nil {
		h.t.Fatal(err)
	}
	data, err := wire.EncodeSessionData(&wire.SessionData{Data: ciphertext})
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.ep.Send(connID, data); err != nil {
		h.t.Fatal(err)
	}
}

func newTestOrchestrator(t *testing.T, tr transport.Transport, store trust.Store, qr string) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Gate:      capability.GrantedGate{},
		Transport: tr,
		Camera:    stubCamera{qr: qr},
		Crypto:    sessioncrypto.NewService(),
		Trust:     store,
		Request:   testRequest(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func testAuthority(t *testing.T) (*trust.Authority, *trust.Signer) {
	t.Helper()
	authority, err := trust.NewAuthority("Test IACA")
	if err != nil {
		t.Fatal(err)
	}
	signer, err := authority.IssueSigner("Test Document Signer")
	if err != nil {
		t.Fatal(err)
	}
	return authority, signer
}

func TestVerificationHappyPath(t *testing.T) {
	authority, signer := testAuthority(t)
	store := trust.NewMemoryStore()
	if err := store.AddAnchor(authority.Certificate); err != nil {
		t.Fatal(err)
	}

	bus := transport.NewLoopback()
	h := newScriptedHolder(t, bus.Endpoint("holder"), signer)
	o := newTestOrchestrator(t, bus.Endpoint("verifier"), store, h.qr)

	st, err := o.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != StateReadyToScan {
		t.Fatalf("got %s, want ReadyToScan", StateName(st.Kind))
	}

	go h.respond()
	if _, err := o.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForKind(t, o, StateSuccess)

	identity, ok := o.Session().State().Payload.(*Identity)
	if !ok {
		t.Fatalf("success payload: %T", o.Session().State().Payload)
	}
	if identity.DocType != testDocType {
		t.Errorf("docType %q", identity.DocType)
	}
	if v, ok := identity.Attributes[testNamespace]["age_over_18"]; !ok || v != true {
		t.Errorf("age_over_18 = %v", v)
	}
	if !o.Session().Closed() {
		t.Error("session should be closed after success")
	}

	// The holder is told the transaction is over.
	ev := waitEvent(t, h.events, transport.EventMessage)
	sd, err := wire.DecodeSessionData(ev.Data)
	if err != nil {
		t.Fatal(err)
	}
	if !sd.IsTermination() {
		t.Errorf("expected termination, got %+v", sd)
	}
}

func TestUntrustedIssuerFails(t *testing.T) {
	_, signer := testAuthority(t)

	// The verifier's store does not contain the issuing authority.
	store := trust.NewMemoryStore()
	otherAuthority, err := trust.NewAuthority("Other IACA")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddAnchor(otherAuthority.Certificate); err != nil {
		t.Fatal(err)
	}

	bus := transport.NewLoopback()
	h := newScriptedHolder(t, bus.Endpoint("holder"), signer)
	o := newTestOrchestrator(t, bus.Endpoint("verifier"), store, h.qr)

	if _, err := o.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	go h.respond()
	if _, err := o.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForKind(t, o, StateFailed)

	failure := o.Session().State().Payload.(*session.Failure)
	if failure.Kind != session.FailureTrust {
		t.Errorf("failure kind %s, want trust", failure.Kind)
	}
	if !o.Session().Closed() {
		t.Error("session should be closed after failure")
	}
}

func TestTamperedItemFails(t *testing.T) {
	authority, signer := testAuthority(t)
	store := trust.NewMemoryStore()
	if err := store.AddAnchor(authority.Certificate); err != nil {
		t.Fatal(err)
	}

	bus := transport.NewLoopback()
	h := newScriptedHolder(t, bus.Endpoint("holder"), signer)
	h.tamperItem = true
	o := newTestOrchestrator(t, bus.Endpoint("verifier"), store, h.qr)

	if _, err := o.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	go h.respond()
	if _, err := o.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForKind(t, o, StateFailed)

	failure := o.Session().State().Payload.(*session.Failure)
	if failure.Kind != session.FailureCrypto {
		t.Errorf("failure kind %s, want crypto", failure.Kind)
	}
}

func TestScanGarbageFails(t *testing.T) {
	bus := transport.NewLoopback()
	o := newTestOrchestrator(t, bus.Endpoint("verifier"), trust.NewMemoryStore(), "not an engagement")

	if _, err := o.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err := o.Scan(context.Background())
	if err == nil {
		t.Fatal("expected scan failure")
	}
	if st.Kind != StateFailed {
		t.Fatalf("got %s, want Failed", StateName(st.Kind))
	}
	failure := st.Payload.(*session.Failure)
	if failure.Kind != session.FailureProtocol {
		t.Errorf("failure kind %s, want protocol", failure.Kind)
	}
}

func TestCancelBeforeScan(t *testing.T) {
	bus := transport.NewLoopback()
	o := newTestOrchestrator(t, bus.Endpoint("verifier"), trust.NewMemoryStore(), "ignored")

	if _, err := o.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err := o.Cancel()
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != StateCancelled {
		t.Fatalf("got %s, want Cancelled", StateName(st.Kind))
	}
	if !o.Session().Closed() {
		t.Error("session should be closed after cancellation")
	}
}
