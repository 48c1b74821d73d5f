// Command mdoc-verifier is a reference mobile credential verifier (reader).
//
// It loads trust anchors from a file, asks for the holder's engagement QR
// URI, connects over the proximity channel, and prints the verified
// identity attributes.
//
// Usage:
//
//	mdoc-verifier [flags]
//
// Flags:
//
//	-connect string       Holder address for the proximity channel (default "localhost:8440")
//	-trust string         Path to the trust anchor file (default "trust.yaml")
//	-retain               Declare intent to retain the disclosed elements
//	-protocol-log string  Path for the binary protocol event log
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// The engagement URI is the "mdoc:" string printed beneath the holder's
// QR code; paste it at the prompt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mdoc-protocol/mdoc-go/pkg/capability"
	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
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

var config struct {
	Connect     string
	Trust       string
	Retain      bool
	ProtocolLog string
	LogLevel    string
}

func init() {
	flag.StringVar(&config.Connect, "connect", "localhost:8440", "Holder address for the proximity channel")
	flag.StringVar(&config.Trust, "trust", "trust.yaml", "Path to the trust anchor file")
	flag.BoolVar(&config.Retain, "retain", false, "Declare intent to retain the disclosed elements")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Path for the binary protocol event log")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

// promptCamera stands in for a camera: it reads the engagement URI from
// the terminal.
type promptCamera struct {
	rl *readline.Instance
}

func (c promptCamera) Scan(context.Context) (string, error) {
	line, err := c.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read engagement: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func main() {
	flag.Parse()
	logger := newLogger(config.LogLevel)

	anchors, err := trust.LoadStore(config.Trust)
	if err != nil {
		logger.Error("trust store load failed", "path", config.Trust, "error", err)
		os.Exit(1)
	}
	logger.Info("trust anchors loaded", "path", config.Trust, "anchors", len(anchors.Anchors()))

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

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "engagement> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		logger.Error("terminal setup failed", "error", err)
		os.Exit(1)
	}
	defer rl.Close()

	o, err := verifier.New(verifier.Config{
		Gate:      capability.GrantedGate{},
		Transport: transport.NewStream(config.Connect),
		Camera:    promptCamera{rl: rl},
		Crypto:    sessioncrypto.NewService(),
		Trust:     anchors,
		Request: wire.NewRequest(docType, map[string]map[string]bool{
			namespace: {
				"age_over_18": false,
				"family_name": config.Retain,
			},
		}),
		Logger:         logger,
		ProtocolLogger: plog,
	})
	if err != nil {
		logger.Error("verifier setup failed", "error", err)
		os.Exit(1)
	}

	if _, err := o.Begin(context.Background()); err != nil {
		logger.Error("begin failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Paste the holder's engagement URI:")
	if _, err := o.Scan(context.Background()); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	st := awaitOutcome(o, 60*time.Second)
	switch st.Kind {
	case verifier.StateSuccess:
		identity := st.Payload.(*verifier.Identity)
		fmt.Printf("\nVerified %s:\n", identity.DocType)
		for ns, attrs := range identity.Attributes {
			for id, value := range attrs {
				fmt.Printf("  %s/%s = %v\n", ns, id, value)
			}
		}
	case verifier.StateFailed:
		failure := st.Payload.(*session.Failure)
		fmt.Printf("\nVerification failed: %v\n", failure)
		os.Exit(1)
	case verifier.StateCancelled:
		fmt.Println("\nVerification cancelled.")
	default:
		fmt.Println("\nTimed out waiting for the holder.")
		o.Cancel()
		os.Exit(1)
	}
}

// awaitOutcome polls until the session reaches a terminal state or the
// deadline passes.
func awaitOutcome(o *verifier.Orchestrator, timeout time.Duration) session.State {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s := o.Session()
		if s != nil && s.Terminal() {
			return s.State()
		}
		time.Sleep(50 * time.Millisecond)
	}
	if s := o.Session(); s != nil {
		return s.State()
	}
	return session.State{}
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
