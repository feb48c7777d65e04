// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/wsgate/pkg/bus"
	"github.com/absmach/wsgate/pkg/compression"
	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/parser"
	"github.com/absmach/wsgate/pkg/parser/websocket"
)

// State is the connection state of an Agent.
type State int

const (
	StateClosed State = iota
	StateConnected
	StateException
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnected:
		return "CONNECTED"
	case StateException:
		return "EXCEPTION"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	markerFinal byte = 0
	markerMore  byte = 1
)

// Wire sends raw bytes to a transport peer. Empty data closes the peer.
type Wire interface {
	Send(identity, data []byte) error
}

// Bus receives reassembled client messages.
type Bus interface {
	Publish(msg bus.Message)
}

// Config is shared by every agent of a dispatcher.
type Config struct {
	// Negotiator creates the handshake negotiator of a new session.
	Negotiator handshake.Factory

	// Handler receives session hooks.
	Handler handler.Handler

	// MaxPayload bounds the payload of a single inbound frame, and its
	// inflated size when compression is negotiated. Zero means the 32-bit
	// limit of the decoder.
	MaxPayload int

	// CompressionLevel is the deflate level of outbound frames. Windows
	// smaller than 15 bits ignore it.
	CompressionLevel int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Agent owns the protocol state of one client.
type Agent struct {
	identity []byte
	key      string
	remote   string
	cfg      *Config
	wire     Wire
	bus      Bus
	logger   *slog.Logger

	state   State
	err     error
	decoder *websocket.Decoder
	comp    *compression.Context
	pending bus.Message
	hctx    *handler.Context
	since   time.Time

	tornDown bool
	closed   bool
}

// Key returns the bus routing key of identity.
func Key(identity []byte) string {
	return fmt.Sprintf("%X", identity)
}

// New creates an agent in the CLOSED state.
func New(identity []byte, remoteAddr string, cfg *Config, w Wire, b Bus) *Agent {
	key := Key(identity)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		identity: identity,
		key:      key,
		remote:   remoteAddr,
		cfg:      cfg,
		wire:     w,
		bus:      b,
		logger:   logger.With(slog.String("session", key)),
		state:    StateClosed,
	}
}

// Key returns the bus routing key of the agent.
func (a *Agent) Key() string {
	return a.key
}

// State returns the current connection state.
func (a *Agent) State() State {
	return a.state
}

// Err returns the error that moved the agent to EXCEPTION, if any.
// A client-initiated close leaves it nil.
func (a *Agent) Err() error {
	return a.err
}

// Receive processes one transmission from the transport, in arrival order.
func (a *Agent) Receive(ctx context.Context, data []byte) {
	switch a.state {
	case StateClosed:
		if len(data) == 0 {
			return
		}
		a.handshake(ctx, data)
	case StateConnected:
		if len(data) == 0 {
			a.fail(fmt.Errorf("%w: empty transmission on open session", gwerrors.ErrProtocolViolation))
			return
		}
		a.decode(ctx, data)
	case StateException:
	}
}

func (a *Agent) handshake(ctx context.Context, request []byte) {
	n := a.cfg.Negotiator()
	if !n.ParseRequest(request) {
		a.reject(errors.New("malformed upgrade request"))
		return
	}
	response, params := n.Response()
	if response == nil {
		a.reject(errors.New("no upgrade response"))
		return
	}

	hctx := &handler.Context{
		SessionID:  a.key,
		RemoteAddr: a.remote,
		Protocol:   "ws",
		Compressed: params.Compressed(),
	}
	if d, ok := n.(handshake.Describer); ok {
		req := d.Request()
		hctx.Path = req.URI
		hctx.Host = req.Host
		hctx.Origin = req.Origin
	}
	if err := a.cfg.Handler.AuthConnect(ctx, hctx); err != nil {
		a.reject(err)
		return
	}

	comp, err := compression.New(compression.Config{
		InboundBits:               params.ClientBits,
		OutboundBits:              params.ServerBits,
		OutboundNoContextTakeover: params.ServerNoContextTakeover,
		Level:                     a.cfg.CompressionLevel,
		MaxInflated:               a.cfg.MaxPayload,
	})
	if err != nil {
		a.reject(err)
		return
	}
	a.comp = comp

	if err := a.wire.Send(a.identity, response); err != nil {
		a.fail(err)
		return
	}

	a.decoder = websocket.NewDecoder(a.cfg.MaxPayload)
	a.hctx = hctx
	a.since = time.Now()
	a.state = StateConnected
	a.cfg.Metrics.ObserveHandshake(true, params.Compressed())

	a.logger.Debug("session connected",
		slog.String("remote", a.remote),
		slog.String("path", hctx.Path),
		slog.Int("client_window", params.ClientBits),
		slog.Int("server_window", params.ServerBits))

	if err := a.cfg.Handler.OnConnect(ctx, hctx); err != nil {
		a.logger.Error("connect handler error", slog.String("error", err.Error()))
	}
}

func (a *Agent) decode(ctx context.Context, data []byte) {
	for _, ev := range a.decoder.Feed(data) {
		a.handle(ctx, ev)
		if a.state != StateConnected {
			return
		}
	}

	if a.decoder.Errored() {
		a.fail(fmt.Errorf("%w: malformed frame", gwerrors.ErrProtocolViolation))
	}
}

func (a *Agent) handle(ctx context.Context, ev websocket.Event) {
	a.cfg.Metrics.ObserveFrame(ev.Type.Opcode().String(), parser.Upstream, len(ev.Payload))

	switch ev.Type {
	case websocket.EventMessage:
		a.reassemble(ctx, ev.Payload)
	case websocket.EventClose:
		code, reason, ok := websocket.ParseClose(ev.Payload)
		attrs := []any{}
		if ok {
			attrs = append(attrs, slog.Int("code", int(code)), slog.String("reason", reason))
		}
		a.logger.Debug("close frame received", attrs...)
		a.teardown()
		a.state = StateException
	case websocket.EventPing:
		if err := a.send(websocket.OpPong, ev.Payload); err != nil {
			a.fail(err)
		}
	case websocket.EventPong:
	}
}

func (a *Agent) reassemble(ctx context.Context, payload []byte) {
	content, err := a.comp.Inflate(payload)
	if err != nil {
		a.pending = nil
		a.fail(err)
		return
	}
	if len(content) == 0 {
		a.fail(fmt.Errorf("%w: missing continuation marker", gwerrors.ErrProtocolViolation))
		return
	}

	if a.pending == nil {
		a.pending = bus.New(a.key)
	}
	a.pending = append(a.pending, content[1:])
	if content[0] != markerFinal {
		return
	}

	parts := a.pending.Parts()
	a.pending = nil

	if err := a.cfg.Handler.AuthPublish(ctx, a.hctx, &parts); err != nil {
		a.logger.Warn("message rejected", slog.String("error", err.Error()))
		a.cfg.Metrics.ObserveDrop(metrics.ReasonRejected)
		return
	}

	msg := bus.New(a.key, parts...)
	a.bus.Publish(msg)
	a.cfg.Metrics.ObserveMessage(parser.Upstream, msg.Size())

	if err := a.cfg.Handler.OnPublish(ctx, a.hctx, parts); err != nil {
		a.logger.Error("publish handler error", slog.String("error", err.Error()))
	}
}

// Deliver frames parts as one WebSocket frame each and sends them to the
// client. Every part but the last carries the continuation marker.
func (a *Agent) Deliver(parts [][]byte) error {
	if a.state != StateConnected {
		return gwerrors.ErrNotConnected
	}

	size := 0
	for i, part := range parts {
		size += len(part)
		marker := markerFinal
		if i < len(parts)-1 {
			marker = markerMore
		}

		frame, err := a.frame(marker, part)
		if err != nil {
			a.fail(err)
			return err
		}
		if err := a.wire.Send(a.identity, frame); err != nil {
			a.fail(err)
			return err
		}
		a.cfg.Metrics.ObserveFrame(websocket.OpBinary.String(), parser.Downstream, len(frame))
	}
	a.cfg.Metrics.ObserveMessage(parser.Downstream, size)

	return nil
}

func (a *Agent) frame(marker byte, content []byte) ([]byte, error) {
	if a.comp.Out != nil {
		payload, err := a.comp.Out.Deflate(marker, content)
		if err != nil {
			return nil, err
		}
		return websocket.Frame(websocket.OpBinary, true, payload), nil
	}

	n := len(content) + 1
	frame := make([]byte, 0, websocket.HeaderSize(n)+n)
	frame = websocket.AppendHeader(frame, websocket.OpBinary, false, n)
	frame = append(frame, marker)
	return append(frame, content...), nil
}

func (a *Agent) send(op websocket.Opcode, payload []byte) error {
	if err := a.wire.Send(a.identity, websocket.Frame(op, false, payload)); err != nil {
		return err
	}
	a.cfg.Metrics.ObserveFrame(op.String(), parser.Downstream, len(payload))
	return nil
}

func (a *Agent) reject(cause error) {
	err := fmt.Errorf("%w: %v", gwerrors.ErrHandshakeFailure, cause)
	if serr := a.wire.Send(a.identity, handshake.Rejection); serr != nil {
		a.logger.Debug("failed to send rejection", slog.String("error", serr.Error()))
	}
	a.cfg.Metrics.ObserveHandshake(false, false)
	a.fail(err)
}

// fail moves the agent to EXCEPTION and tears the connection down.
func (a *Agent) fail(err error) {
	a.err = gwerrors.New("session", a.key, a.remote, err)
	a.state = StateException
	a.teardown()

	a.cfg.Metrics.ObserveFailure(err)
	a.logger.Warn("session failed", slog.String("error", a.err.Error()))
}

func (a *Agent) teardown() {
	if a.tornDown {
		return
	}
	a.tornDown = true
	if err := a.wire.Send(a.identity, nil); err != nil && !errors.Is(err, gwerrors.ErrUnknownRecipient) {
		a.logger.Debug("failed to close connection", slog.String("error", err.Error()))
	}
}

// Close releases the compression streams and ends the session. It does not
// touch the transport and is safe to call more than once.
func (a *Agent) Close(ctx context.Context) {
	if a.closed {
		return
	}
	a.closed = true
	a.pending = nil

	if a.comp != nil {
		if err := a.comp.Release(); err != nil {
			a.logger.Debug("failed to release compression", slog.String("error", err.Error()))
		}
		a.comp = nil
	}

	if a.hctx == nil {
		return
	}
	a.cfg.Metrics.ObserveSession(a.since)
	if err := a.cfg.Handler.OnDisconnect(ctx, a.hctx); err != nil {
		a.logger.Error("disconnect handler error", slog.String("error", err.Error()))
	}
	a.logger.Debug("session closed", slog.String("remote", a.remote))
}
