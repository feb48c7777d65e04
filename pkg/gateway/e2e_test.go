// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/absmach/wsgate/pkg/bus"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/server/tcp"
	gorilla "github.com/gorilla/websocket"
)

func startGateway(t *testing.T) (*Socket, string) {
	t.Helper()

	srv := tcp.New(tcp.Config{Logger: testLogger(), ShutdownTimeout: 2 * time.Second})
	s := New(Config{
		Negotiator: handshake.NewFactory(handshake.Config{Compression: true}),
		Logger:     testLogger(),
	}, srv)
	t.Cleanup(func() { s.Close() })

	endpoint, err := s.Bind("tcp://127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	return s, "ws://" + strings.TrimPrefix(endpoint, "tcp://") + "/"
}

func dialClient(t *testing.T, url string) *gorilla.Conn {
	t.Helper()

	dialer := gorilla.Dialer{HandshakeTimeout: 2 * time.Second}
	c, resp, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEndToEnd_Echo(t *testing.T) {
	s, url := startGateway(t)
	client := dialClient(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, p := range [][]byte{{0x01, 'h', 'e'}, {0x00, 'l', 'l', 'o'}} {
		if err := client.WriteMessage(gorilla.BinaryMessage, p); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	msg, err := s.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if len(msg.Identity()) != 32 {
		t.Errorf("Identity() = %s, want 32 hex digits", msg.Identity())
	}
	if got := string(msg.Content()); got != "hello" {
		t.Fatalf("Content() = %q, want hello", got)
	}

	if err := s.Send(ctx, bus.New(msg.Identity(), []byte("wor"), []byte("ld"))); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, want := range [][]byte{{0x01, 'w', 'o', 'r'}, {0x00, 'l', 'd'}} {
		typ, got, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if typ != gorilla.BinaryMessage || !bytes.Equal(got, want) {
			t.Errorf("ReadMessage() = %d % X, want binary % X", typ, got, want)
		}
	}
}

func TestEndToEnd_PingAndClose(t *testing.T) {
	_, url := startGateway(t)
	client := dialClient(t, url)

	pong := make(chan string, 1)
	client.SetPongHandler(func(data string) error {
		pong <- data
		return nil
	})

	if err := client.WriteControl(gorilla.PingMessage, []byte("hi"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	done := make(chan error, 1)
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case data := <-pong:
		if data != "hi" {
			t.Errorf("Pong payload = %q, want hi", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for pong")
	}

	msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
	if err := client.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected the connection to be closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the gateway to close the connection")
	}
}
