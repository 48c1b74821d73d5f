// Command mdoc-holder is a reference mobile credential holder (wallet).
//
// It provisions a demo mDL credential signed by a freshly generated IACA
// authority, writes the anchor to a trust file a verifier can load, and
// then waits for interactive commands. A presentation renders the device
// engagement as a QR code in the terminal; the verifier request is shown
// for consent before anything is disclosed.
//
// Usage:
//
//	mdoc-holder [flags]
//
// Flags:
//
//	-listen string        Listen address for the proximity channel (default ":8440")
//	-trust-out string     Path to write the trust anchor file (default "trust.yaml")
//	-protocol-log string  Path for the binary protocol event log
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Interactive Commands:
//
//	present   - Start a presentation and show the engagement QR
//	allow     - Disclose all requested elements
//	deny      - Refuse the request
//	cancel    - Abandon the current presentation
//	status    - Show the session state
//	quit      - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mdp/qrterminal/v3"

	"github.com/mdoc-protocol/mdoc-go/pkg/capability"
	"github.com/mdoc-protocol/mdoc-go/pkg/holder"
	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
	"github.com/mdoc-protocol/mdoc-go/pkg/trust"
)

const (
	docType   = "org.iso.18013.5.1.mDL"
	namespace = "org.iso.18013.5.1"
)

var config struct {
	Listen      string
	TrustOut    string
	ProtocolLog string
	LogLevel    string
}

func init() {
	flag.StringVar(&config.Listen, "listen", ":8440", "Listen address for the proximity channel")
	flag.StringVar(&config.TrustOut, "trust-out", "trust.yaml", "Path to write the trust anchor file")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Path for the binary protocol event log")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	logger := newLogger(config.LogLevel)

	store, err := provisionCredential()
	if err != nil {
		logger.Error("provisioning failed", "error", err)
		os.Exit(1)
	}
	logger.Info("demo credential provisioned", "docType", docType, "trustFile", config.TrustOut)

	plog := log.Logger(log.NoopLogger{})
	if config.ProtocolLog != "" {
		fl, err := log.NewFileLogger(config.ProtocolLog)
		if err != nil {
			logger.Error("protocol log open failed", "error", err)
			os.Exit(1)
		}
		defer fl.Close()
		plog = fl
	}

	o, err := holder.New(holder.Config{
		Gate:           capability.GrantedGate{},
		Transport:      transport.NewStream(config.Listen),
		Crypto:         sessioncrypto.NewService(),
		Credentials:    store,
		UI:             consoleUI{},
		Logger:         logger,
		ProtocolLogger: plog,
	})
	if err != nil {
		logger.Error("holder setup failed", "error", err)
		os.Exit(1)
	}

	if err := runShell(o); err != nil {
		logger.Error("shell error", "error", err)
		os.Exit(1)
	}
}

// provisionCredential issues a demo mDL under a fresh authority and writes
// the anchor so a verifier can trust it.
func provisionCredential() (*holder.MemoryStore, error) {
	authority, err := trust.NewAuthority("Demo IACA")
	if err != nil {
		return nil, err
	}
	signer, err := authority.IssueSigner("Demo Document Signer")
	if err != nil {
		return nil, err
	}
	cred, err := holder.Issue(signer, docType, map[string]map[string]any{
		namespace: {
			"family_name":     "Mustermann",
			"given_name":      "Erika",
			"birth_date":      "1986-03-12",
			"age_over_18":     true,
			"issuing_country": "DE",
		},
	})
	if err != nil {
		return nil, err
	}
	store := holder.NewMemoryStore()
	store.Add(cred)

	anchors := trust.NewMemoryStore()
	if err := anchors.AddAnchor(authority.Certificate); err != nil {
		return nil, err
	}
	if err := trust.SaveStore(config.TrustOut, anchors); err != nil {
		return nil, err
	}
	return store, nil
}

// consoleUI renders session states to the terminal. It never calls back
// into the orchestrator.
type consoleUI struct{}

func (consoleUI) Render(st session.State) {
	switch st.Kind {
	case holder.StatePresentingEngagement:
		qr, _ := st.Payload.(string)
		fmt.Println("\nShow this engagement to the verifier:")
		qrterminal.GenerateHalfBlock(qr, qrterminal.L, os.Stdout)
		fmt.Printf("%s\n\n", qr)
	case holder.StateRequestReceived:
		req, _ := st.Payload.(*holder.ConsentRequest)
		fmt.Printf("\nVerifier requests from %s:\n", req.DocType)
		for _, item := range req.Items {
			retain := ""
			if item.IntentToRetain {
				retain = " (will be retained)"
			}
			fmt.Printf("  %s/%s%s\n", item.Namespace, item.Identifier, retain)
		}
		fmt.Println("Type 'allow' or 'deny'.")
	case holder.StateSuccess:
		fmt.Println("\nPresentation complete.")
	case holder.StateFailed:
		failure, _ := st.Payload.(*session.Failure)
		fmt.Printf("\nPresentation failed: %v\n", failure)
	case holder.StateCancelled:
		fmt.Println("\nPresentation cancelled.")
	}
}

func runShell(o *holder.Orchestrator) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "holder> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		switch cmd := strings.TrimSpace(line); cmd {
		case "":
		case "present":
			if _, err := o.Begin(context.Background()); err != nil {
				fmt.Printf("present: %v\n", err)
			}
		case "allow":
			s := o.Session()
			if s == nil {
				fmt.Println("no presentation in progress")
				continue
			}
			req, ok := s.Request()
			if !ok {
				fmt.Println("no request to approve")
				continue
			}
			approved := holder.Selection{}
			for _, item := range req.Items {
				approved[item.Namespace] = append(approved[item.Namespace], item.Identifier)
			}
			if _, err := o.Allow(approved); err != nil {
				fmt.Printf("allow: %v\n", err)
			}
		case "deny":
			if _, err := o.Deny(); err != nil {
				fmt.Printf("deny: %v\n", err)
			}
		case "cancel":
			if _, err := o.Cancel(); err != nil {
				fmt.Printf("cancel: %v\n", err)
			}
		case "status":
			if s := o.Session(); s != nil {
				fmt.Println(holder.StateName(s.Kind()))
			} else {
				fmt.Println("idle")
			}
		case "quit", "exit":
			if s := o.Session(); s != nil && !s.Terminal() {
				o.Cancel()
			}
			return nil
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
