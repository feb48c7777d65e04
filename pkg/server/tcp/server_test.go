// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/ratelimit"
)

func newTestServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()

	cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	s := New(cfg)
	t.Cleanup(func() { s.Close() })

	endpoint, err := s.Bind("tcp://127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	return s, endpoint
}

func dial(t *testing.T, endpoint string) net.Conn {
	t.Helper()

	c, err := net.Dial("tcp", strings.TrimPrefix(endpoint, scheme))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitEvent(t *testing.T, s *Server, want EventType) Event {
	t.Helper()

	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("Event channel closed")
		}
		if ev.Type != want {
			t.Fatalf("Event = %s, want %s", ev.Type, want)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s event", want)
	}
	return Event{}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
		err      bool
	}{
		{endpoint: "tcp://127.0.0.1:5555", want: "127.0.0.1:5555"},
		{endpoint: "tcp://*:5555", want: ":5555"},
		{endpoint: "tcp://[::1]:0", want: "[::1]:0"},
		{endpoint: "127.0.0.1:5555", err: true},
		{endpoint: "ipc:///tmp/gw", err: true},
		{endpoint: "tcp://localhost", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := parseEndpoint(tt.endpoint)
			if tt.err {
				if !errors.Is(err, ErrInvalidEndpoint) {
					t.Errorf("parseEndpoint() error = %v, want ErrInvalidEndpoint", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parseEndpoint() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestServer_Exchange(t *testing.T) {
	s, endpoint := newTestServer(t, Config{})
	if !strings.HasPrefix(endpoint, "tcp://127.0.0.1:") || strings.HasSuffix(endpoint, ":0") {
		t.Fatalf("Unexpected resolved endpoint %s", endpoint)
	}

	client := dial(t, endpoint)
	connected := waitEvent(t, s, EventConnected)
	if len(connected.Identity) != 16 {
		t.Errorf("Identity length = %d, want 16", len(connected.Identity))
	}
	if connected.RemoteAddr != client.LocalAddr().String() {
		t.Errorf("RemoteAddr = %s, want %s", connected.RemoteAddr, client.LocalAddr())
	}

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var received []byte
	for len(received) < 5 {
		ev := waitEvent(t, s, EventData)
		if !bytes.Equal(ev.Identity, connected.Identity) {
			t.Fatal("Data event carries a different identity")
		}
		received = append(received, ev.Data...)
	}
	if string(received) != "hello" {
		t.Errorf("Received %q, want hello", received)
	}

	if err := s.Send(connected.Identity, []byte("wor")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := s.Send(connected.Identity, []byte("ld")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := s.Send(connected.Identity, nil); err != nil {
		t.Fatalf("Send(nil) error = %v", err)
	}
	if err := s.Send(connected.Identity, []byte("late")); err == nil {
		t.Error("Expected Send() after close to fail")
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "world" {
		t.Errorf("Client received %q, want world", got)
	}

	disconnected := waitEvent(t, s, EventDisconnected)
	if !bytes.Equal(disconnected.Identity, connected.Identity) {
		t.Error("Disconnected event carries a different identity")
	}
	if err := s.Send(connected.Identity, []byte("x")); !errors.Is(err, gwerrors.ErrUnknownRecipient) {
		t.Errorf("Send() to a gone peer = %v, want ErrUnknownRecipient", err)
	}
}

func TestServer_PeerClose(t *testing.T) {
	s, endpoint := newTestServer(t, Config{})

	client := dial(t, endpoint)
	connected := waitEvent(t, s, EventConnected)
	client.Close()

	ev := waitEvent(t, s, EventDisconnected)
	if !bytes.Equal(ev.Identity, connected.Identity) {
		t.Error("Disconnected event carries a different identity")
	}
}

func TestServer_DistinctIdentities(t *testing.T) {
	s, endpoint := newTestServer(t, Config{})

	dial(t, endpoint)
	a := waitEvent(t, s, EventConnected)
	dial(t, endpoint)
	b := waitEvent(t, s, EventConnected)

	if bytes.Equal(a.Identity, b.Identity) {
		t.Error("Expected distinct identities")
	}
}

func TestServer_Unbind(t *testing.T) {
	s, endpoint := newTestServer(t, Config{})

	if err := s.Unbind("tcp://127.0.0.1:1"); !errors.Is(err, ErrNotBound) {
		t.Errorf("Unbind() unknown = %v, want ErrNotBound", err)
	}
	if err := s.Unbind(endpoint); err != nil {
		t.Fatalf("Unbind() error = %v", err)
	}
	if _, err := net.DialTimeout("tcp", strings.TrimPrefix(endpoint, scheme), time.Second); err == nil {
		t.Error("Expected dial to fail after Unbind()")
	}
}

func TestServer_AdmissionControl(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, 0, time.Hour)
	defer limiter.Close()
	s, endpoint := newTestServer(t, Config{Limiter: limiter})

	dial(t, endpoint)
	waitEvent(t, s, EventConnected)

	refused := dial(t, endpoint)
	refused.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := refused.Read(make([]byte, 1)); err == nil {
		t.Error("Expected refused connection to be closed")
	}

	select {
	case ev := <-s.Events():
		t.Errorf("Unexpected %s event for a refused connection", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_Close(t *testing.T) {
	s, endpoint := newTestServer(t, Config{})

	client := dial(t, endpoint)
	connected := waitEvent(t, s, EventConnected)
	if err := s.Send(connected.Identity, []byte("bye")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, _ := io.ReadAll(client)
	if string(got) != "bye" {
		t.Errorf("Expected queued data to be flushed, got %q", got)
	}

	for range s.Events() {
	}
	if _, err := s.Bind("tcp://127.0.0.1:0"); !errors.Is(err, gwerrors.ErrGatewayClosed) {
		t.Errorf("Bind() after Close() = %v, want ErrGatewayClosed", err)
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	if s.config.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", s.config.ShutdownTimeout)
	}
	if s.config.ReadBufferSize != 32*1024 {
		t.Errorf("Expected default read buffer 32KiB, got %d", s.config.ReadBufferSize)
	}
	if cap(s.events) != 1024 {
		t.Errorf("Expected default event queue 1024, got %d", cap(s.events))
	}
	if s.config.Logger == nil || s.config.Metrics == nil {
		t.Error("Expected default logger and metrics")
	}
}
