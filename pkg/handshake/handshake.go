// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"bytes"
	"io"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
)

const (
	// MinWindowBits is the smallest negotiable deflate window factor.
	MinWindowBits = 8
	// MaxWindowBits is the largest negotiable deflate window factor.
	MaxWindowBits = 15
)

// Rejection is the fixed reply sent when a handshake cannot be completed.
var Rejection = []byte("HTTP/1.1 406 Not Acceptable\r\n\r\n")

// Params holds the negotiated permessage-deflate parameters.
// A zero window factor disables compression for that direction.
type Params struct {
	// ClientBits is the window factor of client to server messages.
	ClientBits int
	// ServerBits is the window factor of server to client messages.
	ServerBits int

	ClientNoContextTakeover bool
	ServerNoContextTakeover bool
}

// Compressed reports whether any direction uses compression.
func (p Params) Compressed() bool {
	return p.ClientBits != 0 || p.ServerBits != 0
}

// Request carries metadata captured from the opening request.
type Request struct {
	URI    string
	Host   string
	Origin string
}

// Negotiator consumes an opening handshake and produces its response.
// A Negotiator is used for exactly one connection.
type Negotiator interface {
	// ParseRequest validates the raw opening request.
	ParseRequest(data []byte) bool

	// Response returns the upgrade response and the negotiated parameters.
	// A nil response means the handshake failed.
	Response() ([]byte, Params)
}

// Describer is implemented by negotiators that expose request metadata.
type Describer interface {
	Request() Request
}

// Config controls which extension parameters the server offers.
type Config struct {
	// Compression enables permessage-deflate negotiation.
	Compression bool

	// ServerMaxWindowBits bounds the server to client window factor.
	// Zero leaves the choice to the client.
	ServerMaxWindowBits int

	// ServerNoContextTakeover forces the server to reset its compressor
	// after every message.
	ServerNoContextTakeover bool
}

// Factory creates a fresh Negotiator per connection.
type Factory func() Negotiator

// NewFactory returns a Factory producing gobwas-backed negotiators.
func NewFactory(cfg Config) Factory {
	return func() Negotiator {
		return New(cfg)
	}
}

var (
	_ Negotiator = (*negotiator)(nil)
	_ Describer  = (*negotiator)(nil)
)

type negotiator struct {
	offer    *wsflate.Parameters
	req      Request
	response []byte
	params   Params
}

// New returns a Negotiator backed by gobwas/ws.
func New(cfg Config) Negotiator {
	n := &negotiator{}
	if cfg.Compression {
		p := wsflate.Parameters{
			ServerNoContextTakeover: cfg.ServerNoContextTakeover,
		}
		if cfg.ServerMaxWindowBits >= MinWindowBits && cfg.ServerMaxWindowBits < MaxWindowBits {
			p.ServerMaxWindowBits = wsflate.WindowBits(cfg.ServerMaxWindowBits)
		}
		n.offer = &p
	}
	return n
}

func (n *negotiator) ParseRequest(data []byte) bool {
	n.response = nil
	n.params = Params{}
	n.req = Request{}

	var out bytes.Buffer
	u := ws.Upgrader{
		OnRequest: func(uri []byte) error {
			n.req.URI = string(uri)
			return nil
		},
		OnHost: func(host []byte) error {
			n.req.Host = string(host)
			return nil
		},
		OnHeader: func(key, value []byte) error {
			if bytes.EqualFold(key, []byte("Origin")) {
				n.req.Origin = string(value)
			}
			return nil
		},
	}
	var ext *wsflate.Extension
	if n.offer != nil {
		ext = &wsflate.Extension{Parameters: *n.offer}
		u.Negotiate = ext.Negotiate
	}

	rw := struct {
		io.Reader
		io.Writer
	}{bytes.NewReader(data), &out}
	if _, err := u.Upgrade(rw); err != nil {
		return false
	}

	if ext != nil {
		if p, ok := ext.Accepted(); ok {
			n.params = n.negotiated(p)
		}
	}
	n.response = out.Bytes()

	return true
}

// negotiated merges the client's accepted offer with the server's own
// parameters. The response advertises the server's values, so they win
// wherever they are set.
func (n *negotiator) negotiated(accepted wsflate.Parameters) Params {
	p := Params{
		ClientBits:              windowBits(accepted.ClientMaxWindowBits),
		ServerBits:              windowBits(accepted.ServerMaxWindowBits),
		ClientNoContextTakeover: accepted.ClientNoContextTakeover || n.offer.ClientNoContextTakeover,
		ServerNoContextTakeover: accepted.ServerNoContextTakeover || n.offer.ServerNoContextTakeover,
	}
	if n.offer.ServerMaxWindowBits.Defined() {
		p.ServerBits = windowBits(n.offer.ServerMaxWindowBits)
	}
	return p
}

func (n *negotiator) Response() ([]byte, Params) {
	return n.response, n.params
}

func (n *negotiator) Request() Request {
	return n.req
}

// windowBits maps an accepted parameter to a window factor. An absent value
// means the largest window.
func windowBits(b wsflate.WindowBits) int {
	bits := int(b)
	if bits < MinWindowBits || bits > MaxWindowBits {
		return MaxWindowBits
	}
	return bits
}
