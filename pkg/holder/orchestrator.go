package holder

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mdoc-protocol/mdoc-go/pkg/capability"
	"github.com/mdoc-protocol/mdoc-go/pkg/log"
	"github.com/mdoc-protocol/mdoc-go/pkg/session"
	"github.com/mdoc-protocol/mdoc-go/pkg/sessioncrypto"
	"github.com/mdoc-protocol/mdoc-go/pkg/transport"
	"github.com/mdoc-protocol/mdoc-go/pkg/wire"
)

var (
	// ErrSessionActive indicates Begin was called while a previous
	// presentation is still live. Cancel it first.
	ErrSessionActive = errors.New("presentation already in progress")

	// ErrNoSession indicates an operation that needs a live session.
	ErrNoSession = errors.New("no active presentation")
)

// Crypto is the orchestrator's view of the session cryptography service.
type Crypto interface {
	NewHolderContext(serviceUUID uuid.UUID) (*sessioncrypto.Context, []byte, error)
	SignDeviceAuth(deviceKey *ecdsa.PrivateKey, transcriptBytes []byte, docType string) (*wire.DeviceAuth, error)
}

var _ Crypto = (*sessioncrypto.Service)(nil)

// Renderer receives the session state after every observable change. It is
// a one-way notification: implementations must not call back into the
// orchestrator from Render.
type Renderer interface {
	Render(state session.State)
}

// Config carries the collaborators of a holder orchestrator.
type Config struct {
	Gate        capability.Gate
	Transport   transport.Transport
	Crypto      Crypto
	Credentials Store

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
		return errors.New("holder config: capability gate is required")
	}
	if c.Transport == nil {
		return errors.New("holder config: transport is required")
	}
	if c.Crypto == nil {
		return errors.New("holder config: crypto service is required")
	}
	if c.Credentials == nil {
		return errors.New("holder config: credential store is required")
	}
	return nil
}

// Orchestrator drives a holder presentation: it owns the active Session,
// reacts to transport events, and applies the user's consent decisions.
// At most one presentation is live at a time.
type Orchestrator struct {
	mu   sync.Mutex
	cfg  Config
	log  *slog.Logger
	plog log.Logger

	active *Session
	adv    *transport.Handle
}

// New creates a holder orchestrator and registers it as the transport
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

// Begin starts a new presentation. If all capabilities are granted it runs
// straight through engagement generation and starts advertising; otherwise
// it stops in Preflight with the missing set as payload.
func (o *Orchestrator) Begin(ctx context.Context) (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && !o.active.Terminal() {
		return o.active.State(), ErrSessionActive
	}
	o.active = NewSession(o.plog)
	o.adv = nil
	o.log.Info("presentation started", "session", o.active.ID())

	missing, err := o.cfg.Gate.CheckCapabilities(ctx)
	if err != nil {
		return o.failLocked(session.FailureInternal, fmt.Errorf("capability check: %w", err))
	}
	if !missing.Empty() {
		return o.transitionLocked(session.State{Kind: StatePreflight, Payload: missing})
	}
	return o.beginEngagementLocked(ctx)
}

// RequestCapability asks the platform to authorize one missing capability,
// then re-checks the full set. Only valid in Preflight. The session either
// stays in Preflight with the updated missing set or proceeds to
// engagement when nothing is missing anymore.
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
	return o.beginEngagementLocked(ctx)
}

// beginEngagementLocked generates keys and engagement, shows the QR, and
// starts advertising. Caller holds o.mu with the session past preflight.
func (o *Orchestrator) beginEngagementLocked(ctx context.Context) (session.State, error) {
	if _, err := o.active.Transition(session.State{Kind: StateReadyToPresent}); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	serviceUUID := uuid.New()
	cctx, engagementBytes, err := o.cfg.Crypto.NewHolderContext(serviceUUID)
	if err != nil {
		return o.failLocked(session.FailureCrypto, fmt.Errorf("engagement keys: %w", err))
	}
	if err := o.active.SetCryptoContext(cctx); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	qr := wire.EncodeQR(engagementBytes)
	if _, err := o.active.Transition(session.State{Kind: StatePresentingEngagement, Payload: qr}); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	adv, err := o.cfg.Transport.StartAdvertising(ctx, serviceUUID)
	if err != nil {
		return o.failLocked(session.FailureTransport, fmt.Errorf("start advertising: %w", err))
	}
	if err := o.active.AdoptAdvertising(adv); err != nil {
		adv.Release()
		return o.failLocked(session.FailureInternal, err)
	}
	o.adv = adv
	o.log.Info("advertising engagement", "session", o.active.ID(), "service", serviceUUID.String())
	return o.renderLocked(), nil
}

// HandleTransportEvent reacts to connection, message, and disconnect
// events. Events arriving for a finished or absent session are ignored.
func (o *Orchestrator) HandleTransportEvent(ev transport.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || o.active.Terminal() {
		return
	}
	switch ev.Type {
	case transport.EventConnected:
		o.handleConnectedLocked(ev)
	case transport.EventMessage:
		o.plog.Log(log.NewFrame(o.active.ID(), log.RoleHolder, log.DirectionIn, len(ev.Data)))
		o.handleMessageLocked(ev)
	case transport.EventDisconnected:
		o.log.Info("transport dropped", "session", o.active.ID(), "conn", ev.ConnID)
		o.cancelLocked(false)
	}
}

func (o *Orchestrator) handleConnectedLocked(ev transport.Event) {
	if o.active.Kind() != StatePresentingEngagement {
		if ev.Handle != nil {
			ev.Handle.Release()
		}
		return
	}
	if _, err := o.active.Transition(session.State{Kind: StateConnecting}); err != nil {
		o.failLocked(session.FailureInternal, err)
		return
	}
	if err := o.active.SetConnectionHandle(ev.Handle); err != nil {
		o.failLocked(session.FailureInternal, err)
		return
	}
	// Engagement is over once a verifier connects.
	if o.adv != nil {
		o.adv.Release()
	}
	o.log.Info("verifier connected", "session", o.active.ID(), "conn", ev.ConnID)
	o.renderLocked()
}

func (o *Orchestrator) handleMessageLocked(ev transport.Event) {
	switch o.active.Kind() {
	case StateConnecting:
		o.handleEstablishmentLocked(ev.Data)
	case StateRequestReceived, StateProcessingResponse:
		sd, err := wire.DecodeSessionData(ev.Data)
		if err != nil {
			o.failLocked(session.FailureProtocol, err)
			return
		}
		if sd.IsTermination() {
			o.log.Info("peer terminated session", "session", o.active.ID())
			o.cancelLocked(false)
			return
		}
		o.failLocked(session.FailureProtocol, errors.New("unexpected message after request"))
	default:
		// Data before establishment or in transient states is a peer
		// defect; drop it.
	}
}

// handleEstablishmentLocked processes the verifier's SessionEstablishment:
// derive session keys, decrypt the request, and hand it to consent.
func (o *Orchestrator) handleEstablishmentLocked(data []byte) {
	se, err := wire.DecodeEstablishment(data)
	if err != nil {
		o.failLocked(session.FailureProtocol, err)
		return
	}
	cctx, ok := o.active.CryptoContext()
	if !ok {
		o.failLocked(session.FailureInternal, errors.New("no crypto context at establishment"))
		return
	}
	if err := cctx.Establish(se.EReaderKey); err != nil {
		o.sendStatusLocked(wire.StatusErrorSessionEncryption)
		o.failLocked(session.FailureCrypto, err)
		return
	}
	plaintext, err := cctx.Decrypt(se.Data)
	if err != nil {
		o.sendStatusLocked(wire.StatusErrorSessionEncryption)
		o.failLocked(session.FailureCrypto, err)
		return
	}
	req, err := wire.DecodeRequest(plaintext)
	if err != nil {
		o.sendStatusLocked(wire.StatusErrorCBORDecoding)
		o.failLocked(session.FailureProtocol, err)
		return
	}
	consent, err := consentFromRequest(req)
	if err != nil {
		o.failLocked(session.FailureProtocol, err)
		return
	}
	if err := o.active.SetRequest(consent); err != nil {
		o.failLocked(session.FailureInternal, err)
		return
	}
	if _, err := o.active.Transition(session.State{Kind: StateRequestReceived, Payload: consent}); err != nil {
		o.failLocked(session.FailureInternal, err)
		return
	}
	o.log.Info("request received", "session", o.active.ID(),
		"docType", consent.DocType, "items", len(consent.Items))
	o.renderLocked()
}

// / Allow applies the user's consent: build, sign, encrypt, and send the
// response containing exactly the approved subset. Only valid in
// RequestReceived.
func (o *Orchestrator) Allow(approved Selection) (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return session.State{}, ErrNoSession
	}
	if o.active.Kind() != StateRequestReceived {
		return o.active.State(), fmt.Errorf("%w: consent outside request state", session.ErrWrongState)
	}
	consent, _ := o.active.Request()
	if _, err := o.active.Transition(session.State{Kind: StateProcessingResponse}); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	cred, err := o.cfg.Credentials.Lookup(consent.DocType)
	if err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	cctx, ok := o.active.CryptoContext()
	if !ok {
		return o.failLocked(session.FailureInternal, errors.New("no crypto context at response"))
	}
	deviceAuth, err := o.cfg.Crypto.SignDeviceAuth(cred.DeviceKey, cctx.TranscriptBytes(), cred.DocType)
	if err != nil {
		return o.failLocked(session.FailureCrypto, fmt.Errorf("sign device auth: %w", err))
	}
	resp := &wire.DeviceResponse{
		Version: wire.ResponseVersion,
		Documents: []wire.Document{{
			DocType:    cred.DocType,
			NameSpaces: cred.Disclose(approved),
			IssuerAuth: cred.IssuerAuth,
			DeviceAuth: *deviceAuth,
		}},
		Status: wire.ResponseStatusOK,
	}
	respBytes, err := wire.EncodeResponse(resp)
	if err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	ciphertext, err := cctx.Encrypt(respBytes)
	if err != nil {
		return o.failLocked(session.FailureCrypto, err)
	}
	if err := o.sendLocked(&wire.SessionData{Data: ciphertext}); err != nil {
		return o.failLocked(session.FailureTransport, err)
	}
	if _, err := o.active.Transition(session.State{Kind: StateSuccess, Payload: resp}); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	o.log.Info("response delivered", "session", o.active.ID(), "docType", cred.DocType)
	o.active.Close()
	return o.renderLocked(), nil
}

// Deny rejects the request: the session is cancelled and the verifier is
// notified with a termination status.
func (o *Orchestrator) Deny() (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return session.State{}, ErrNoSession
	}
	return o.cancelLocked(true), nil
}

// Cancel abandons the presentation from any non-terminal state, notifying
// the verifier when a session is established. On a terminal session it is
// a no-op.
func (o *Orchestrator) Cancel() (session.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return session.State{}, ErrNoSession
	}
	return o.cancelLocked(true), nil
}

// cancelLocked transitions to Cancelled and tears the session down. When
// notifyPeer is set and a session is established, a termination status is
// sent first, best effort.
func (o *Orchestrator) cancelLocked(notifyPeer bool) session.State {
	if o.active.Terminal() {
		return o.active.State()
	}
	if notifyPeer {
		if cctx, ok := o.active.CryptoContext(); ok && cctx.Established() {
			if err := o.sendLocked(wire.NewTermination()); err != nil {
				o.log.Warn("termination notify failed", "session", o.active.ID(), "error", err)
			}
		}
	}
	if _, err := o.active.Transition(session.State{Kind: StateCancelled}); err != nil {
		o.log.Error("cancel transition rejected", "session", o.active.ID(), "error", err)
	}
	o.log.Info("presentation cancelled", "session", o.active.ID())
	o.active.Close()
	return o.renderLocked()
}

// failLocked records the classified failure, transitions to Failed, and
// tears the session down. Returns the terminal state and the failure.
func (o *Orchestrator) failLocked(kind session.FailureKind, cause error) (session.State, error) {
	failure := &session.Failure{Kind: kind, Err: cause}
	o.log.Error("presentation failed", "session", o.active.ID(),
		"kind", kind.String(), "error", cause)
	o.plog.Log(log.NewError(o.active.ID(), log.RoleHolder, failure))
	if _, err := o.active.Transition(session.State{Kind: StateFailed, Payload: failure}); err != nil {
		o.log.Error("fail transition rejected", "session", o.active.ID(), "error", err)
	}
	o.active.Close()
	return o.renderLocked(), failure
}

// sendLocked encodes and transmits a SessionData message on the session's
// connection.
func (o *Orchestrator) sendLocked(sd *wire.SessionData) error {
	conn, ok := o.active.ConnectionHandle()
	if !ok {
		return transport.ErrConnClosed
	}
	data, err := wire.EncodeSessionData(sd)
	if err != nil {
		return err
	}
	if err := o.cfg.Transport.Send(conn.ID(), data); err != nil {
		return err
	}
	o.plog.Log(log.NewFrame(o.active.ID(), log.RoleHolder, log.DirectionOut, len(data)))
	return nil
}

// sendStatusLocked notifies the peer of an error status, best effort.
func (o *Orchestrator) sendStatusLocked(status uint) {
	if err := o.sendLocked(&wire.SessionData{Status: &status}); err != nil {
		o.log.Warn("status notify failed", "session", o.active.ID(), "status", status, "error", err)
	}
}

// transitionLocked applies a transition and renders the result.
func (o *Orchestrator) transitionLocked(to session.State) (session.State, error) {
	if _, err := o.active.Transition(to); err != nil {
		return o.failLocked(session.FailureInternal, err)
	}
	return o.renderLocked(), nil
}

// renderLocked pushes the current state to the UI and returns it.
func (o *Orchestrator) renderLocked() session.State {
	st := o.active.State()
	if o.cfg.UI != nil {
		o.cfg.UI.Render(st)
	}
	return st
}

// consentFromRequest flattens a device request into the consent form,
// sorted by namespace then identifier so the UI presentation is stable.
// The response carries exactly one document, so a request spanning more
// than one doc type cannot be answered and is rejected.
func consentFromRequest(req *wire.DeviceRequest) (*ConsentRequest, error) {
	consent := &ConsentRequest{}
	for _, dr := range req.DocRequests {
		if consent.DocType == "" {
			consent.DocType = dr.ItemsRequest.DocType
		} else if dr.ItemsRequest.DocType != consent.DocType {
			return nil, fmt.Errorf("request spans multiple doc types: %q and %q",
				consent.DocType, dr.ItemsRequest.DocType)
		}
		for ns, elems := range dr.ItemsRequest.NameSpaces {
			for id, retain := range elems {
				consent.Items = append(consent.Items, RequestedItem{
					Namespace:      ns,
					Identifier:     id,
					IntentToRetain: retain,
				})
			}
		}
	}
	sort.Slice(consent.Items, func(i, j int) bool {
		a, b := consent.Items[i], consent.Items[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Identifier < b.Identifier
	})
	return consent, nil
}
