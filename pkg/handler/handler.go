// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
)

// Context contains session metadata captured during the WebSocket handshake.
// It is passed to Handler methods to provide auth context.
type Context struct {
	// SessionID is the hex identity of the client on the message bus
	SessionID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Protocol is always "ws" for gateway sessions
	Protocol string

	// Path is the request URI of the upgrade request
	Path string

	// Host is the value of the Host header
	Host string

	// Origin is the value of the Origin header, if any
	Origin string

	// Compressed reports whether permessage-deflate was negotiated
	Compressed bool
}

// Handler defines authorization and notification callbacks for session events.
// The connection agent calls these methods at appropriate points in the session lifecycle.
//
// Authorization methods (AuthConnect, AuthPublish) are called BEFORE the action
// takes effect. They can:
// - Return an error to reject the action
// - Modify the message parts via the pointer
//
// Notification methods (OnConnect, OnPublish, OnDisconnect) are called AFTER
// successful actions for audit logging, metrics, or post-processing. Errors from
// these methods are logged but don't prevent the action.
type Handler interface {
	// AuthConnect authorizes a client after its upgrade request was parsed.
	// Return an error to reject the handshake with 406 Not Acceptable.
	AuthConnect(ctx context.Context, hctx *Context) error

	// AuthPublish authorizes a reassembled client message before it is handed
	// to the bus. The parts can be modified via the pointer.
	// Return an error to drop the message.
	AuthPublish(ctx context.Context, hctx *Context, parts *[][]byte) error

	// OnConnect is called after the upgrade response was sent.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnPublish is called after a message was handed to the bus.
	OnPublish(ctx context.Context, hctx *Context, parts [][]byte) error

	// OnDisconnect is called when a connected session ends (gracefully or due to error).
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that allows all operations.
// Useful for testing or when no authorization is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) AuthPublish(ctx context.Context, hctx *Context, parts *[][]byte) error {
	return nil
}

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnPublish(ctx context.Context, hctx *Context, parts [][]byte) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
