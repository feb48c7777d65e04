// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"bytes"
	"strings"
	"testing"
)

const sampleAccept = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="

func upgradeRequest(extra ...string) []byte {
	lines := []string{
		"GET /chat?room=1 HTTP/1.1",
		"Host: gateway.example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 13",
		"Origin: http://example.com",
	}
	lines = append(lines, extra...)
	return []byte(strings.Join(lines, "\r\n") + "\r\n\r\n")
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		request    []byte
		wantOK     bool
		wantParams Params
		wantExt    bool
		wantHeader string
	}{
		{
			name:    "plain upgrade",
			cfg:     Config{Compression: true},
			request: upgradeRequest(),
			wantOK:  true,
		},
		{
			name:       "permessage-deflate offered",
			cfg:        Config{Compression: true},
			request:    upgradeRequest("Sec-WebSocket-Extensions: permessage-deflate"),
			wantOK:     true,
			wantParams: Params{ClientBits: MaxWindowBits, ServerBits: MaxWindowBits},
			wantExt:    true,
		},
		{
			name:       "server window bits",
			cfg:        Config{Compression: true, ServerMaxWindowBits: 10},
			request:    upgradeRequest("Sec-WebSocket-Extensions: permessage-deflate; client_max_window_bits"),
			wantOK:     true,
			wantParams: Params{ClientBits: MaxWindowBits, ServerBits: 10},
			wantExt:    true,
			wantHeader: "server_max_window_bits=10",
		},
		{
			name:       "server no context takeover",
			cfg:        Config{Compression: true, ServerNoContextTakeover: true},
			request:    upgradeRequest("Sec-WebSocket-Extensions: permessage-deflate"),
			wantOK:     true,
			wantParams: Params{ClientBits: MaxWindowBits, ServerBits: MaxWindowBits, ServerNoContextTakeover: true},
			wantExt:    true,
			wantHeader: "server_no_context_takeover",
		},
		{
			name:       "client asks for a larger server window",
			cfg:        Config{Compression: true, ServerMaxWindowBits: 10},
			request:    upgradeRequest("Sec-WebSocket-Extensions: permessage-deflate; server_max_window_bits=12"),
			wantOK:     true,
			wantParams: Params{},
		},
		{
			name:    "compression disabled ignores offer",
			cfg:     Config{},
			request: upgradeRequest("Sec-WebSocket-Extensions: permessage-deflate"),
			wantOK:  true,
		},
		{
			name:    "not an upgrade",
			cfg:     Config{Compression: true},
			request: []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
		},
		{
			name:    "garbage",
			cfg:     Config{Compression: true},
			request: []byte("\x00\x01\x02\x03"),
		},
		{
			name: "missing key",
			cfg:  Config{Compression: true},
			request: []byte("GET / HTTP/1.1\r\nHost: example.com\r\nUpgrade: websocket\r\n" +
				"Connection: Upgrade\r\nSec-WebSocket-Version: 13\r\n\r\n"),
		},
		{
			name:    "truncated request",
			cfg:     Config{Compression: true},
			request: upgradeRequest()[:40],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(tt.cfg)
			ok := n.ParseRequest(tt.request)
			if ok != tt.wantOK {
				t.Fatalf("ParseRequest() = %v, want %v", ok, tt.wantOK)
			}

			resp, params := n.Response()
			if !tt.wantOK {
				if resp != nil {
					t.Errorf("Expected nil response on failure, got %q", resp)
				}
				return
			}

			if !bytes.HasPrefix(resp, []byte("HTTP/1.1 101 ")) {
				t.Errorf("Expected 101 response, got %q", resp)
			}
			if !bytes.Contains(resp, []byte(sampleAccept)) {
				t.Errorf("Expected accept key %s in %q", sampleAccept, resp)
			}
			if got := bytes.Contains(resp, []byte("permessage-deflate")); got != tt.wantExt {
				t.Errorf("Extension in response = %v, want %v", got, tt.wantExt)
			}
			if tt.wantHeader != "" && !bytes.Contains(resp, []byte(tt.wantHeader)) {
				t.Errorf("Expected %s in %q", tt.wantHeader, resp)
			}
			if params != tt.wantParams {
				t.Errorf("Params = %+v, want %+v", params, tt.wantParams)
			}
			if params.Compressed() != tt.wantExt {
				t.Errorf("Compressed() = %v, want %v", params.Compressed(), tt.wantExt)
			}
		})
	}
}

func TestRequestMetadata(t *testing.T) {
	n := New(Config{})
	if !n.ParseRequest(upgradeRequest()) {
		t.Fatal("ParseRequest() failed")
	}

	d, ok := n.(Describer)
	if !ok {
		t.Fatal("Expected negotiator to implement Describer")
	}
	want := Request{URI: "/chat?room=1", Host: "gateway.example.com", Origin: "http://example.com"}
	if got := d.Request(); got != want {
		t.Errorf("Request() = %+v, want %+v", got, want)
	}
}

func TestFactory(t *testing.T) {
	f := NewFactory(Config{Compression: true})
	a, b := f(), f()
	if a == b {
		t.Error("Expected a fresh negotiator per call")
	}

	if !a.ParseRequest(upgradeRequest("Sec-WebSocket-Extensions: permessage-deflate")) {
		t.Fatal("ParseRequest() failed")
	}
	if _, p := b.Response(); p.Compressed() {
		t.Error("Expected negotiators not to share state")
	}
}
