package mdoc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mdoc-protocol/mdoc-go/pkg/capability"
	"github.com/mdoc-protocol/mdoc-go/pkg/holder"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
	"github.com/mdoc-protocol/mdoc-go/pkg/trust"
	"github.com/mdoc-protocol/mdoc-go/pkg/verifier"
	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

const (
	testDocType   = "org.iso.18013.5.1.mDL"
	testNamespace = "org.iso.18013.5.1"
)

// relayCamera passes the holder's engagement QR to the verifier.
type relayCamera struct{ qr chan string }

func (c relayCamera) Scan(ctx context.Context) (string, error) {
	select {
	case qr := <-c.qr:
		return qr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// testbed wires a holder and a verifier to the given transports with a
// shared trust root.
type testbed struct {
	holder   *holder.Orchestrator
	verifier *verifier.Orchestrator
	camera   relayCamera
}

func newTestbed(t *testing.T, holderTr, verifierTr transport.Transport) *testbed {
	t.Helper()

	authority, err := trust.NewAuthority("Integration IACA")
	require.NoError(t, err)
	signer, err := authority.IssueSigner("Integration DS")
	require.NoError(t, err)

	cred, err := holder.Issue(signer, testDocType, map[string]map[string]any{
		testNamespace: {
			"family_name": "Mustermann",
			"given_name":  "Erika",
			"age_over_18": true,
		},
	})
	require.NoError(t, err)
	credentials := holder.NewMemoryStore()
	credentials.Add(cred)

	anchors := trust.NewMemoryStore()
	require.NoError(t, anchors.AddAnchor(authority.Certificate))

	h, err := holder.New(holder.Config{
		Gate:        capability.GrantedGate{},
		Transport:   holderTr,
		Crypto:      sessioncrypto.NewService(),
		Credentials: credentials,
	})
	require.NoError(t, err)

	camera := relayCamera{qr: make(chan string, 1)}
	v, err := verifier.New(verifier.Config{
		Gate:      capability.GrantedGate{},
		Transport: verifierTr,
		Camera:    camera,
		Crypto:    sessioncrypto.NewService(),
		Trust:     anchors,
		Request: wire.NewRequest(testDocType, map[string]map[string]bool{
			testNamespace: {"age_over_18": false, "family_name": true},
		}),
	})
	require.NoError(t, err)

	return &testbed{holder: h, verifier: v, camera: camera}
}

// engage runs both sides through engagement and establishment, leaving
// the holder in RequestReceived and the verifier in Verifying.
func (tb *testbed) engage(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	st, err := tb.holder.Begin(ctx)
	require.NoError(t, err)
	require.Equal(t, holder.StatePresentingEngagement, st.Kind)
	tb.camera.qr <- st.Payload.(string)

	_, err = tb.verifier.Begin(ctx)
	require.NoError(t, err)
	_, err = tb.verifier.Scan(ctx)
	require.NoError(t, err)

	waitFor(t, func() bool {
		return tb.holder.Session().Kind() == holder.StateRequestReceived
	})
}

func waitFor(t *testing.T, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if done() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func runPresentation(t *testing.T, tb *testbed) {
	t.Helper()
	tb.engage(t)

	consent, ok := tb.holder.Session().Request()
	require.True(t, ok)
	require.Equal(t, testDocType, consent.DocType)
	require.Len(t, consent.Items, 2)

	approved := holder.Selection{}
	for _, item := range consent.Items {
		approved[item.Namespace] = append(approved[item.Namespace], item.Identifier)
	}
	st, err := tb.holder.Allow(approved)
	require.NoError(t, err)
	require.Equal(t, holder.StateSuccess, st.Kind)

	waitFor(t, func() bool { return tb.verifier.Session().Terminal() })
	final := tb.verifier.Session().State()
	require.Equal(t, verifier.StateSuccess, final.Kind,
		"verifier ended in %s", verifier.StateName(final.Kind))

	identity := final.Payload.(*verifier.Identity)
	require.Equal(t, testDocType, identity.DocType)
	require.Equal(t, true, identity.Attributes[testNamespace]["age_over_18"])
	require.Equal(t, "Mustermann", identity.Attributes[testNamespace]["family_name"])

	// Both sessions must be fully torn down: resources released and
	// session keys wiped.
	require.True(t, tb.holder.Session().Closed())
	require.True(t, tb.verifier.Session().Closed())
	hc, _ := tb.holder.Session().CryptoContext()
	require.True(t, hc.Wiped())
	vc, _ := tb.verifier.Session().CryptoContext()
	require.True(t, vc.Wiped())
}

func TestE2E_PresentationOverLoopback(t *testing.T) {
	bus := transport.NewLoopback()
	tb := newTestbed(t, bus.Endpoint("holder"), bus.Endpoint("verifier"))
	runPresentation(t, tb)
}

func TestE2E_PresentationOverStream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Reserve a local port for the stream rendezvous.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	tb := newTestbed(t, transport.NewStream(addr), transport.NewStream(addr))
	runPresentation(t, tb)
}

func TestE2E_StreamDenyTeardown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	tb := newTestbed(t, transport.NewStream(addr), transport.NewStream(addr))
	tb.engage(t)

	// Deny tears the session down while the transport is live; it must
	// come back as Cancelled on both sides instead of hanging.
	st, err := tb.holder.Deny()
	require.NoError(t, err)
	require.Equal(t, holder.StateCancelled, st.Kind)
	require.True(t, tb.holder.Session().Closed())

	waitFor(t, func() bool { return tb.verifier.Session().Terminal() })
	require.Equal(t, verifier.StateCancelled, tb.verifier.Session().Kind())
}

func TestE2E_VerifierCancelDuringConsent(t *testing.T) {
	bus := transport.NewLoopback()
	tb := newTestbed(t, bus.Endpoint("holder"), bus.Endpoint("verifier"))
	tb.engage(t)

	st, err := tb.verifier.Cancel()
	require.NoError(t, err)
	require.Equal(t, verifier.StateCancelled, st.Kind)

	// The holder learns of the termination and abandons, not fails.
	waitFor(t, func() bool { return tb.holder.Session().Terminal() })
	require.Equal(t, holder.StateCancelled, tb.holder.Session().Kind())
	require.True(t, tb.holder.Session().Closed())
}

func TestE2E_HolderDenyDuringConsent(t *testing.T) {
	bus := transport.NewLoopback()
	tb := newTestbed(t, bus.Endpoint("holder"), bus.Endpoint("verifier"))
	tb.engage(t)

	st, err := tb.holder.Deny()
	require.NoError(t, err)
	require.Equal(t, holder.StateCancelled, st.Kind)

	waitFor(t, func() bool { return tb.verifier.Session().Terminal() })
	require.Equal(t, verifier.StateCancelled, tb.verifier.Session().Kind())

	failure, isFailure := tb.verifier.Session().State().Payload.(*session.Failure)
	require.False(t, isFailure, "deny must cancel, not fail: %v", failure)
}
