// Command presentation-example runs a complete proximity presentation
// between an in-process holder and verifier.
//
// This example shows how to:
//   - Provision a demo credential under a fresh trust authority
//   - Wire a holder and a verifier to a shared transport
//   - Drive engagement, establishment, consent, and verification
//   - Record the protocol event log and read it back
//
// Usage:
//
//	go run ./cmd/presentation-example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mdoc-protocol/mdoc-go/pkg/capability"
	"github.com/mdoc-protocol/mdoc-go/pkg/holder"
	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
	"github.com/mdoc-protocol/mdoc-go/pkg/trust"
	"github.com/mdoc-protocol/mdoc-go/pkg/verifier"
	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

const (
	docType   = "org.iso.18013.5.1.mDL"
	namespace = "org.iso.18013.5.1"
)

// fixedCamera hands the engagement QR straight to the verifier.
type fixedCamera struct{ qr chan string }

func (c fixedCamera) Scan(ctx context.Context) (string, error) {
	select {
	case qr := <-c.qr:
		return qr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Trust setup: one authority, one document signer, one credential.
	authority, err := trust.NewAuthority("Example IACA")
	if err != nil {
		fatal(logger, "authority", err)
	}
	signer, err := authority.IssueSigner("Example Document Signer")
	if err != nil {
		fatal(logger, "signer", err)
	}
	cred, err := holder.Issue(signer, docType, map[string]map[string]any{
		namespace: {
			"family_name": "Mustermann",
			"given_name":  "Erika",
			"age_over_18": true,
		},
	})
	if err != nil {
		fatal(logger, "issue", err)
	}
	credentials := holder.NewMemoryStore()
	credentials.Add(cred)

	anchors := trust.NewMemoryStore()
	if err := anchors.AddAnchor(authority.Certificate); err != nil {
		fatal(logger, "anchor", err)
	}

	// Protocol events go to the operational log and a binary file.
	logPath := filepath.Join(os.TempDir(), "presentation-example.mlog")
	fileLog, err := log.NewFileLogger(logPath)
	if err != nil {
		fatal(logger, "protocol log", err)
	}
	plog := log.NewMultiLogger(log.NewSlogAdapter(logger), fileLog)

	bus := transport.NewLoopback()

	holderOrch, err := holder.New(holder.Config{
		Gate:           capability.GrantedGate{},
		Transport:      bus.Endpoint("holder"),
		Crypto:         sessioncrypto.NewService(),
		Credentials:    credentials,
		Logger:         logger.With("role", "holder"),
		ProtocolLogger: plog,
	})
	if err != nil {
		fatal(logger, "holder", err)
	}

	camera := fixedCamera{qr: make(chan string, 1)}
	verifierOrch, err := verifier.New(verifier.Config{
		Gate:      capability.GrantedGate{},
		Transport: bus.Endpoint("verifier"),
		Camera:    camera,
		Crypto:    sessioncrypto.NewService(),
		Trust:     anchors,
		Request: wire.NewRequest(docType, map[string]map[string]bool{
			namespace: {"age_over_18": false, "family_name": true},
		}),
		Logger:         logger.With("role", "verifier"),
		ProtocolLogger: plog,
	})
	if err != nil {
		fatal(logger, "verifier", err)
	}

	// Holder: engage and advertise.
	st, err := holderOrch.Begin(context.Background())
	if err != nil {
		fatal(logger, "holder begin", err)
	}
	camera.qr <- st.Payload.(string)

	// Verifier: scan the engagement and send the request.
	if _, err := verifierOrch.Begin(context.Background()); err != nil {
		fatal(logger, "verifier begin", err)
	}
	if _, err := verifierOrch.Scan(context.Background()); err != nil {
		fatal(logger, "verifier scan", err)
	}

	// Holder: wait for the request, then consent to everything asked.
	waitFor(logger, func() bool { return holderOrch.Session().Kind() == holder.StateRequestReceived })
	consent, _ := holderOrch.Session().Request()
	approved := holder.Selection{}
	for _, item := range consent.Items {
		approved[item.Namespace] = append(approved[item.Namespace], item.Identifier)
	}
	if _, err := holderOrch.Allow(approved); err != nil {
		fatal(logger, "holder allow", err)
	}

	// Verifier: wait for the verified identity.
	waitFor(logger, func() bool { return verifierOrch.Session().Terminal() })
	final := verifierOrch.Session().State()
	if final.Kind != verifier.StateSuccess {
		fatal(logger, "verification", fmt.Errorf("ended in %s", verifier.StateName(final.Kind)))
	}
	identity := final.Payload.(*verifier.Identity)
	fmt.Printf("Verified %s:\n", identity.DocType)
	for ns, attrs := range identity.Attributes {
		for id, value := range attrs {
			fmt.Printf("  %s/%s = %v\n", ns, id, value)
		}
	}

	if err := fileLog.Close(); err != nil {
		fatal(logger, "protocol log close", err)
	}
	events, err := log.ReadFile(logPath)
	if err != nil {
		fatal(logger, "protocol log read", err)
	}
	fmt.Printf("Protocol log: %d events in %s\n", len(events), logPath)
}

func waitFor(logger *slog.Logger, done func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if done() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	fatal(logger, "wait", fmt.Errorf("timed out"))
}

func fatal(logger *slog.Logger, stage string, err error) {
	logger.Error("example failed", "stage", stage, "error", err)
	os.Exit(1)
}
