// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/absmach/wsgate/pkg/agent"
	"github.com/absmach/wsgate/pkg/bus"
	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/server/tcp"
	"github.com/eapache/queue"
	"github.com/prometheus/client_golang/prometheus"
)

// Control commands.
const (
	CmdBind   = "BIND"
	CmdUnbind = "UNBIND"
	CmdTerm   = "$TERM"

	cmdStats = "$STATS"
)

// ErrUnknownCommand is returned for malformed control commands.
var ErrUnknownCommand = errors.New("unknown command")

// Stream is the identity-tagged transport the dispatcher serves.
type Stream interface {
	Bind(endpoint string) (string, error)
	Unbind(endpoint string) error
	Events() <-chan tcp.Event
	Send(identity, data []byte) error
	Close() error
}

// Config holds the gateway configuration.
type Config struct {
	// Negotiator creates the handshake negotiator of each session.
	// Defaults to a gobwas negotiator with compression enabled.
	Negotiator handshake.Factory

	// Handler receives session hooks. Defaults to NoopHandler.
	Handler handler.Handler

	// MaxPayload bounds a single inbound frame payload and its inflated
	// size. Zero means no limit.
	MaxPayload int

	// CompressionLevel is the deflate level of outbound frames. It only
	// applies when the negotiated server window is 15 bits.
	CompressionLevel int

	// InboundQueue is the capacity of the channel read by Recv.
	InboundQueue int

	// OutboundQueue is the capacity of the channel written by Send.
	OutboundQueue int

	// MaxBacklog bounds the messages held by the dispatcher while the
	// inbound channel is full. Zero means unbounded.
	MaxBacklog int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type command struct {
	name  string
	arg   string
	reply chan reply
}

type reply struct {
	value string
	err   error
}

// Socket is the application's handle on the gateway. Its methods are safe
// for concurrent use; they only exchange messages with the dispatcher.
type Socket struct {
	control  chan command
	outbound chan bus.Message
	inbound  chan bus.Message
	done     chan struct{}

	d *dispatcher
}

// New starts the dispatcher over stream and returns its handle.
func New(cfg Config, stream Stream) *Socket {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("", prometheus.NewRegistry())
	}
	if cfg.Handler == nil {
		cfg.Handler = &handler.NoopHandler{}
	}
	if cfg.Negotiator == nil {
		cfg.Negotiator = handshake.NewFactory(handshake.Config{Compression: true})
	}
	if cfg.InboundQueue <= 0 {
		cfg.InboundQueue = 1024
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = 1024
	}

	s := &Socket{
		control:  make(chan command),
		outbound: make(chan bus.Message, cfg.OutboundQueue),
		inbound:  make(chan bus.Message, cfg.InboundQueue),
		done:     make(chan struct{}),
	}
	s.d = &dispatcher{
		stream:  stream,
		agents:  make(map[string]*agent.Agent),
		dead:    make(map[string]struct{}),
		backlog: queue.New(),
		limit:   cfg.MaxBacklog,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		agentCfg: agent.Config{
			Negotiator:       cfg.Negotiator,
			Handler:          cfg.Handler,
			MaxPayload:       cfg.MaxPayload,
			CompressionLevel: cfg.CompressionLevel,
			Metrics:          cfg.Metrics,
			Logger:           cfg.Logger,
		},
	}

	go s.d.run(s)

	return s
}

// Command sends a textual control command ("BIND <endpoint>",
// "UNBIND <endpoint>" or "$TERM") to the dispatcher and waits for its reply.
func (s *Socket) Command(ctx context.Context, line string) (string, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case CmdBind, CmdUnbind:
		if arg == "" {
			return "", fmt.Errorf("%w: %s requires an endpoint", ErrUnknownCommand, name)
		}
	case CmdTerm, cmdStats:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}

	cmd := command{name: name, arg: arg, reply: make(chan reply, 1)}
	select {
	case s.control <- cmd:
	case <-s.done:
		return "", gwerrors.ErrGatewayClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r := <-cmd.reply
	return r.value, r.err
}

// Bind listens on endpoint and returns the resolved endpoint.
func (s *Socket) Bind(endpoint string) (string, error) {
	return s.Command(context.Background(), CmdBind+" "+endpoint)
}

// Unbind stops listening on endpoint.
func (s *Socket) Unbind(endpoint string) error {
	_, err := s.Command(context.Background(), CmdUnbind+" "+endpoint)
	return err
}

// Sessions returns the number of agents owned by the dispatcher.
func (s *Socket) Sessions(ctx context.Context) (int, error) {
	v, err := s.Command(ctx, cmdStats)
	if err != nil {
		return 0, err
	}
	var n int
	_, err = fmt.Sscanf(v, "%d", &n)
	return n, err
}

// Check reports whether the dispatcher is responsive.
func (s *Socket) Check(ctx context.Context) error {
	_, err := s.Sessions(ctx)
	return err
}

// Send queues msg for delivery. The first part addresses the client.
func (s *Socket) Send(ctx context.Context, msg bus.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return gwerrors.ErrGatewayClosed
	default:
	}

	select {
	case s.outbound <- msg:
		return nil
	case <-s.done:
		return gwerrors.ErrGatewayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next reassembled client message.
func (s *Socket) Recv(ctx context.Context) (bus.Message, error) {
	select {
	case msg, ok := <-s.inbound:
		if !ok {
			return nil, gwerrors.ErrGatewayClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close terminates the dispatcher, closes every session and the transport.
// It is safe to call more than once.
func (s *Socket) Close() error {
	_, err := s.Command(context.Background(), CmdTerm)
	if errors.Is(err, gwerrors.ErrGatewayClosed) {
		return nil
	}
	return err
}

// Done is closed when the dispatcher has exited.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Listen blocks until ctx is canceled or the dispatcher exits, then closes
// the socket.
func (s *Socket) Listen(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return s.Close()
	case <-s.done:
		return nil
	}
}
