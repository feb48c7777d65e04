// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const scheme = "tcp://"

var (
	// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

	// ErrInvalidEndpoint is returned for endpoints not of the form tcp://host:port.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrNotBound is returned when unbinding an unknown endpoint.
	ErrNotBound = errors.New("endpoint not bound")
)

// EventType identifies a transport event.
type EventType int

const (
	// EventConnected reports a new peer.
	EventConnected EventType = iota
	// EventData carries bytes received from a peer.
	EventData
	// EventDisconnected reports that a peer is gone.
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventData:
		return "data"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a transport event tagged with the peer identity.
type Event struct {
	Type       EventType
	Identity   []byte
	RemoteAddr string
	Data       []byte
}

// Config holds the TCP transport configuration.
type Config struct {
	// ReadBufferSize is the size of a single read from a peer.
	ReadBufferSize int

	// EventQueue is the capacity of the event channel.
	EventQueue int

	// ShutdownTimeout is the maximum time to wait for queued writes to drain
	// during Close. After this timeout, remaining connections are forcefully
	// closed.
	ShutdownTimeout time.Duration

	// Limiter is optional per-host admission control.
	Limiter *ratelimit.Limiter

	Metrics *metrics.Metrics

	// Logger for server events
	Logger *slog.Logger
}

// Server is an identity-tagged TCP transport. Every accepted connection gets
// a random 16-byte identity; inbound bytes are reported as events and
// outbound bytes are addressed by identity.
type Server struct {
	config Config
	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	bindings map[string]*binding
	conns    map[string]*conn
	closed   bool

	wg sync.WaitGroup
}

type binding struct {
	ln   net.Listener
	keys []string
}

// New creates a new TCP transport.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 32 * 1024
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = 1024
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("", prometheus.NewRegistry())
	}

	return &Server{
		config:   cfg,
		events:   make(chan Event, cfg.EventQueue),
		done:     make(chan struct{}),
		bindings: make(map[string]*binding),
		conns:    make(map[string]*conn),
	}
}

// Events returns the channel of transport events. It is closed by Close once
// every connection goroutine has exited.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Bind listens on endpoint and returns the resolved endpoint, which differs
// from the requested one when port 0 or a wildcard host is used.
func (s *Server) Bind(endpoint string) (string, error) {
	addr, err := parseEndpoint(endpoint)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", gwerrors.ErrGatewayClosed
	}
	if _, ok := s.bindings[endpoint]; ok {
		return "", fmt.Errorf("%s already bound", endpoint)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}

	resolved := scheme + ln.Addr().String()
	b := &binding{ln: ln, keys: []string{endpoint}}
	if resolved != endpoint {
		b.keys = append(b.keys, resolved)
	}
	for _, k := range b.keys {
		s.bindings[k] = b
	}

	s.wg.Add(1)
	go s.accept(ln)

	s.config.Logger.Info("TCP endpoint bound", slog.String("endpoint", resolved))

	return resolved, nil
}

// Unbind stops listening on an endpoint previously returned by or passed to
// Bind. Established connections are not affected.
func (s *Server) Unbind(endpoint string) error {
	s.mu.Lock()
	b, ok := s.bindings[endpoint]
	if ok {
		for _, k := range b.keys {
			delete(s.bindings, k)
		}
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, endpoint)
	}

	s.config.Logger.Info("TCP endpoint unbound", slog.String("endpoint", endpoint))

	return b.ln.Close()
}

// Send queues data for the peer with the given identity. Empty data closes
// the peer after previously queued data has been written.
func (s *Server) Send(identity, data []byte) error {
	s.mu.Lock()
	c, ok := s.conns[string(identity)]
	s.mu.Unlock()

	if !ok {
		return gwerrors.ErrUnknownRecipient
	}
	return c.enqueue(data)
}

// Close stops every listener, drains queued writes up to the shutdown
// timeout, closes every connection and finally closes the event channel.
// Events raised while closing are dropped.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	listeners := make(map[*binding]struct{})
	for _, b := range s.bindings {
		listeners[b] = struct{}{}
	}
	s.bindings = make(map[string]*binding)

	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	// Pending events are dropped from here on.
	close(s.done)

	for b := range listeners {
		if err := b.ln.Close(); err != nil {
			s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
		}
	}
	for _, c := range conns {
		// Close after the pending writes.
		_ = c.enqueue(nil)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure")
		for _, c := range conns {
			c.abort()
		}
		<-done
		err = ErrShutdownTimeout
	}

	close(s.events)
	s.config.Logger.Info("TCP transport closed")

	return err
}

func (s *Server) accept(ln net.Listener) {
	defer s.wg.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
			continue
		}

		remote := nc.RemoteAddr().String()
		host, _, err := net.SplitHostPort(remote)
		if err != nil {
			host = remote
		}
		if !s.config.Limiter.Allow(host) {
			s.config.Metrics.RateLimited.Inc()
			s.config.Logger.Warn("connection refused by admission control", slog.String("remote", remote))
			nc.Close()
			continue
		}

		id := uuid.New()
		c := newConn(id[:], nc)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			nc.Close()
			return
		}
		s.conns[string(c.id)] = c
		s.wg.Add(2)
		s.mu.Unlock()

		s.config.Metrics.TransportConnections.Inc()
		go s.write(c)
		go s.read(c)
	}
}

// read reports the connection, its data and its end, in that order.
func (s *Server) read(c *conn) {
	defer s.wg.Done()

	remote := c.nc.RemoteAddr().String()
	defer func() {
		s.mu.Lock()
		delete(s.conns, string(c.id))
		s.mu.Unlock()

		c.abort()
		s.config.Metrics.TransportConnections.Dec()
		s.emit(Event{Type: EventDisconnected, Identity: c.id, RemoteAddr: remote})
	}()

	if !s.emit(Event{Type: EventConnected, Identity: c.id, RemoteAddr: remote}) {
		return
	}

	buf := make([]byte, s.config.ReadBufferSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.emit(Event{Type: EventData, Identity: c.id, RemoteAddr: remote, Data: data}) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.config.Logger.Debug("connection read error",
					slog.String("remote", remote),
					slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Server) write(c *conn) {
	defer s.wg.Done()

	if err := c.drain(); err != nil {
		s.config.Logger.Debug("connection write error",
			slog.String("remote", c.nc.RemoteAddr().String()),
			slog.String("error", err.Error()))
	}
	c.nc.Close()
}

func (s *Server) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func parseEndpoint(endpoint string) (string, error) {
	addr, ok := strings.CutPrefix(endpoint, scheme)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidEndpoint, endpoint)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if host == "*" {
		host = ""
	}
	return net.JoinHostPort(host, port), nil
}
