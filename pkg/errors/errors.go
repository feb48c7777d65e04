// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for the gateway.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrProtocolViolation indicates a malformed or unsupported WebSocket frame.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrCompressionFailure indicates a corrupt deflate stream or a failed compressor.
	ErrCompressionFailure = errors.New("compression failure")

	// ErrHandshakeFailure indicates a rejected opening handshake.
	ErrHandshakeFailure = errors.New("handshake failure")

	// ErrUnknownRecipient indicates an outbound message for an identity with no live agent.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrNotConnected indicates an outbound message for an agent that has not completed the handshake.
	ErrNotConnected = errors.New("not connected")

	// ErrGatewayClosed indicates the gateway worker has terminated.
	ErrGatewayClosed = errors.New("gateway closed")

	// ErrRateLimited indicates a connection refused by admission control.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// GatewayError wraps an error with connection context.
type GatewayError struct {
	Op         string // Operation that failed
	SessionID  string // Hex identity of the peer
	RemoteAddr string // Client address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.RemoteAddr != "" {
		return fmt.Sprintf("%s [%s] %s: %v", e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.SessionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// New creates a new GatewayError.
func New(op, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Op:         op,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}
