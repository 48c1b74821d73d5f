package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mdoc-protocol/mdoc-go/pkg/capability"
	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
	"github.com/mdoc-protocol/mdoc-go/pkg/trust"
	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

var (
	// ErrSessionActive indicates Begin was called while a previous
	// verification is still live.
	ErrSessionActive = errors.New("verification already in progress")

	// ErrNoSession indicates an operation that needs a live session.
	ErrNoSession = errors.New("no active verification")
)

// Camera produces the contents of a scanned engagement QR code.
type Camera interface {
	Scan(ctx context.Context) (string, error)
}

// Crypto is the orchestrator's view of the session cryptography service.
type Crypto interface {
	NewReaderContext(engagementBytes []byte) (*sessioncrypto.Context, *wire.DeviceEngagement, error)
	VerifyDeviceAuth(doc *wire.Document, transcriptBytes []byte) error
}

var _ Crypto = (*sessioncrypto.Service)(nil)

// Renderer receives the session state after every observable change. It is
// a one-way notification: implementations must not call back into the
// orchestrator from Render.
type Renderer interface {
	Render(state session.State)
}

// Config carries the collaborators of a verifier orchestrator.
type Config struct {
	Gate      capability.Gate
	Transport transport.Transport
	Camera    Camera
	Crypto    Crypto
	Trust     trust.Store

	// Request is the device request sent to every presented holder.
	Request *wire.DeviceRequest

	// UI is optional; nil disables rendering.
	UI Renderer

	// Logger is the operational logger; nil discards.
	Logger *slog.Logger

	// ProtocolLogger records protocol events; nil discards.
	ProtocolLogger log.Logger
}

// Validate checks that the required collaborators are present.
func (c *Config) Validate() error {
	if c.Gate == nil {
		return errors.New("verifier config: capability gate is required")
	}
	if c.Transport == nil {
		return errors.New("verifier config: transport is required")
	}
	if c.Camera == nil {
		return errors.New("verifier config: camera is required")
	}
	if c.Crypto == nil {
		return errors.New("verifier config: crypto service is required")
	}
	if c.Trust == nil {
		return errors.New("verifier config: trust store is required")
	}
	if c.Request == nil {
		return errors.New("verifier config: device request is required")
	}
	return c.Request.Validate()
}

// Orchestrator drives a verification: it owns the active Session, scans
// engagements, sends the configured request, and verifies responses. At
// most one verification is live at a time.
type Orchestrator struct {
	mu   sync.Mutex
	cfg  Config
	log  *slog.Logger
	plog log.Logger

	active *Session
}

// New creates a verifier orchestrator and registers it as the transport
// event handler.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = log.NoopLogger{}
	}
	o := &Orchestrator{cfg: cfg, log: cfg.Logger, plog: cfg.ProtocolLogger}
	cfg.Transport.OnEvent(o.HandleTransportEvent)
	return o, nil
}

// Session returns the active session, or nil.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Begin starts a new verification. With all capabilities granted it stops
// in ReadyToScan, waiting for the operator to scan an engagement;
// otherwise it stops in Preflight with the missing set as payload.
func (o *Orchestrator) Begin(ctx context.Context) (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && !o.active.Terminal() {
		return o.active.State(), ErrSessionActive
	}
	o.active = NewSession(o.plog)
	o.log.Info("verification started", "session", o.active.ID())

	missing, err := o.cfg.Gate.CheckCapabilities(ctx)
	if err != nil {
		return o.failLocked(session.FailureInternal, fmt.Errorf("capability check: %w", err))
	}
	if !missing.Empty() {
		return o.transitionLocked(session.State{Kind: StatePreflight, Payload: missing})
	}
	return o.transitionLocked(session.State{Kind: StateReadyToScan})
}

// RequestCapability asks the platform to authorize one missing capability,
// then re-checks the full set. Only valid in Preflight.
func (o *Orchestrator) RequestCapability(ctx context.Context, c capability.Capability) (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return session.State{}, ErrNoSession
	}
	if o.active.Kind() != StatePreflight {
		return o.active.State(), fmt.Errorf("%w: capability request outside preflight", session.ErrWrongState)
	}
	granted, err := o.cfg.Gate.RequestAuthorization(ctx, c)
	if err != nil {
		return o.failLocked(session.FailureInternal, fmt.Errorf("authorization request: %w", err))
	}
	o.log.Info("capability authorization", "capability", c.String(), "granted", granted)

	missing, err := o.cfg.Gate.CheckCapabilities(ctx)
	if err != nil {
		return o.failLocked(session.FailureInternal, fmt.Errorf("capability check: %w", err))
	}
	if !missing.Empty() {
		return o.transitionLocked(session.State{Kind: StatePreflight, Payload: missing})
	}
	return o.transitionLocked(session.State{Kind: StateReadyToScan})
}

// Scan reads an engagement QR through the camera, derives session keys,
// connects to the holder, and sends the establishment message carrying
// the encrypted request. Only valid in ReadyToScan. On success the session
// is in Verifying, waiting for the holder's response.
func (o *Orchestrator) Scan(ctx context.Context) (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return session.State{}, ErrNoSession
	}
	if o.active.Kind() != StateReadyToScan {
		return o.active.State(), fmt.Errorf("%w: scan outside ready state", session.ErrWrongState)
	}
	qr, err := o.cfg.Camera.Scan(ctx)
	if err != nil {
		return o.failLocked(session.FailureInternal, fmt.Errorf("scan engagement: %w", err))
	}
	return o.processEngagementLocked(ctx, qr)
}

func (o *Orchestrator) processEngagementLocked(ctx context.Context, qr string) (session.State, error) {
	if _, err := o.active.Transition(session.State{Kind: StateProcessingEngagement}); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	engagementBytes, err := wire.DecodeQR(qr)
	if err != nil {
		return o.failLocked(session.FailureProtocol, err)
	}
	cctx, engagement, err := o.cfg.Crypto.NewReaderContext(engagementBytes)
	if err != nil {
		kind := session.FailureCrypto
		if errors.Is(err, wire.ErrInvalidEngagement) {
			kind = session.FailureProtocol
		}
		return o.failLocked(kind, err)
	}
	if err := o.active.SetCryptoContext(cctx); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	serviceUUID, err := engagement.BLEServiceUUID()
	if err != nil {
		return o.failLocked(session.FailureProtocol, err)
	}
	if _, err := o.active.Transition(session.State{Kind: StateConnecting}); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	handle, err := o.cfg.Transport.Connect(ctx, serviceUUID)
	if err != nil {
		return o.failLocked(session.FailureTransport, fmt.Errorf("connect to holder: %w", err))
	}
	if err := o.active.SetConnectionHandle(handle); err != nil {
		handle.Release()
		return o.failLocked(session.FailureInternal, err)
	}
	o.log.Info("connected to holder", "session", o.active.ID(), "service", serviceUUID.String())

	reqBytes, err := wire.EncodeRequest(o.cfg.Request)
	if err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	ciphertext, err := cctx.Encrypt(reqBytes)
	if err != nil {
		return o.failLocked(session.FailureCrypto, err)
	}
	seBytes, err := wire.EncodeEstablishment(&wire.SessionEstablishment{
		EReaderKey: cctx.PublicKey(),
		Data:       ciphertext,
	})
	if err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	if err := o.cfg.Transport.Send(handle.ID(), seBytes); err != nil {
		return o.failLocked(session.FailureTransport, err)
	}
	o.plog.Log(log.NewFrame(o.active.ID(), log.RoleVerifier, log.DirectionOut, len(seBytes)))
	return o.transitionLocked(session.State{Kind: StateVerifying})
}

// HandleTransportEvent reacts to message and disconnect events. Events
// arriving for a finished or absent session are ignored.
func (o *Orchestrator) HandleTransportEvent(ev transport.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || o.active.Terminal() {
		return
	}
	switch ev.Type {
	case transport.EventConnected:
		// The verifier dials; inbound connections are not expected.
		if ev.Handle != nil {
			ev.Handle.Release()
		}
	case transport.EventMessage:
		o.plog.Log(log.NewFrame(o.active.ID(), log.RoleVerifier, log.DirectionIn, len(ev.Data)))
		if o.active.Kind() == StateVerifying {
			o.handleResponseLocked(ev.Data)
		}
	case transport.EventDisconnected:
		o.log.Info("transport dropped", "session", o.active.ID(), "conn", ev.ConnID)
		o.cancelLocked(false)
	}
}

// handleResponseLocked decrypts and verifies the holder's response:
// issuer chain against the trust store, issuer signature and item digests,
// and the device signature over the session transcript.
func (o *Orchestrator) handleResponseLocked(data []byte) {
	sd, err := wire.DecodeSessionData(data)
	if err != nil {
		o.failLocked(session.FailureProtocol, err)
		return
	}
	if sd.IsTermination() {
		o.log.Info("peer terminated session", "session", o.active.ID())
		o.cancelLocked(false)
		return
	}
	if sd.Status != nil {
		o.failLocked(session.FailureProtocol, fmt.Errorf("peer reported error status %d", *sd.Status))
		return
	}
	cctx, ok := o.active.CryptoContext()
	if !ok {
		o.failLocked(session.FailureInternal, errors.New("no crypto context at response"))
		return
	}
	plaintext, err := cctx.Decrypt(sd.Data)
	if err != nil {
		o.failLocked(session.FailureCrypto, err)
		return
	}
	resp, err := wire.DecodeResponse(plaintext)
	if err != nil {
		o.failLocked(session.FailureProtocol, err)
		return
	}
	if resp.Status != wire.ResponseStatusOK {
		o.failLocked(session.FailureProtocol, fmt.Errorf("holder returned status %d", resp.Status))
		return
	}

	identity := &Identity{Attributes: make(map[string]map[string]any)}
	for i := range resp.Documents {
		doc := &resp.Documents[i]
		leaf, err := trust.ValidateChain(doc.IssuerAuth.Chain, o.cfg.Trust)
		if err != nil {
			o.failLocked(session.FailureTrust, err)
			return
		}
		if err := sessioncrypto.VerifyIssuerAuth(leaf, doc); err != nil {
			kind := session.FailureTrust
			if errors.Is(err, sessioncrypto.ErrDigestMismatch) {
				kind = session.FailureCrypto
			}
			o.failLocked(kind, err)
			return
		}
		if err := o.cfg.Crypto.VerifyDeviceAuth(doc, cctx.TranscriptBytes()); err != nil {
			o.failLocked(session.FailureCrypto, err)
			return
		}
		if identity.DocType == "" {
			identity.DocType = doc.DocType
		}
		for ns, items := range doc.NameSpaces {
			if identity.Attributes[ns] == nil {
				identity.Attributes[ns] = make(map[string]any, len(items))
			}
			for _, item := range items {
				identity.Attributes[ns][item.Identifier] = item.Value
			}
		}
	}

	// Verification is complete; let the holder tear down cleanly.
	o.sendTerminationLocked()
	if _, err := o.active.Transition(session.State{Kind: StateSuccess, Payload: identity}); err != nil {
		o.failLocked(session.FailureInternal, err)
		return
	}
	o.log.Info("response verified", "session", o.active.ID(), "docType", identity.DocType)
	o.active.Close()
	o.renderLocked()
}

// Cancel abandons the verification from any non-terminal state, notifying
// the holder when a session is established. On a terminal session it is a
// no-op.
func (o *Orchestrator) Cancel() (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return session.State{}, ErrNoSession
	}
	return o.cancelLocked(true), nil
}

func (o *Orchestrator) cancelLocked(notifyPeer bool) session.State {
	if o.active.Terminal() {
		return o.active.State()
	}
	if notifyPeer {
		o.sendTerminationLocked()
	}
	if _, err := o.active.Transition(session.State{Kind: StateCancelled}); err != nil {
		o.log.Error("cancel transition rejected", "session", o.active.ID(), "error", err)
	}
	o.log.Info("verification cancelled", "session", o.active.ID())
	o.active.Close()
	return o.renderLocked()
}

func (o *Orchestrator) failLocked(kind session.FailureKind, cause error) (session.State, error) {
	failure := &session.Failure{Kind: kind, Err: cause}
	o.log.Error("verification failed", "session", o.active.ID(),
		"kind", kind.String(), "error", cause)
	o.plog.Log(log.NewError(o.active.ID(), log.RoleVerifier, failure))
	if _, err := o.active.Transition(session.State{Kind: StateFailed, Payload: failure}); err != nil {
		o.log.Error("fail transition rejected", "session", o.active.ID(), "error", err)
	}
	o.active.Close()
	return o.renderLocked(), failure
}

// sendTerminationLocked notifies the peer the session is over, best
// effort. A no-op before a connection exists.
func (o *Orchestrator) sendTerminationLocked() {
	conn, ok := o.active.ConnectionHandle()
	if !ok {
		return
	}
	cctx, ok := o.active.CryptoContext()
	if !ok || !cctx.Established() {
		return
	}
	data, err := wire.EncodeSessionData(wire.NewTermination())
	if err != nil {
		return
	}
	if err := o.cfg.Transport.Send(conn.ID(), data); err != nil {
		o.log.Warn("termination notify failed", "session", o.active.ID(), "error", err)
		return
	}
	o.plog.Log(log.NewFrame(o.active.ID(), log.RoleVerifier, log.DirectionOut, len(data)))
}

func (o *Orchestrator) transitionLocked(to session.State) (session.State, error) {
	if _, err := o.active.Transition(to); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	return o.renderLocked(), nil
}

func (o *Orchestrator) renderLocked() session.State {
	st := o.active.State()
	if o.cfg.UI != nil {
		o.cfg.UI.Render(st)
	}
	return st
}
