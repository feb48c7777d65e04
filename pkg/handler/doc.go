// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the hooks that link gateway sessions to business logic.
//
// # Architecture Overview
//
// The Handler interface serves as the bridge between the connection agent and
// application-level authorization and event handling. When the agent completes
// a handshake or reassembles a client message, it calls the corresponding
// Handler methods.
//
// # Data Flow
//
//	Client → Agent (handshake) → Handler.AuthConnect → 101 or 406
//	Client → Agent (reassembly) → Handler.AuthPublish → Bus
//
// # Handler Methods
//
// Authorization methods (Auth*) are called before the action:
//   - AuthConnect: Verifies the upgrade request metadata
//   - AuthPublish: Authorizes and may rewrite a reassembled message
//
// Notification methods (On*) are called after successful operations:
//   - OnConnect: Notifies successful upgrade
//   - OnPublish: Notifies message delivery to the bus
//   - OnDisconnect: Notifies the end of a connected session
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: Hex identity used as the bus routing key
//   - RemoteAddr: Client's network address
//   - Protocol: Always "ws"
//   - Path, Host, Origin: Taken from the upgrade request
//   - Compressed: Whether permessage-deflate was negotiated
//
// # Implementation
//
// Applications implement the Handler interface to integrate wsgate with their
// authorization systems. The NoopHandler provides a pass-through implementation
// for testing or when no authorization is needed.
//
// # Example
//
//	type MyHandler struct {
//		origins map[string]bool
//	}
//
//	func (h *MyHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
//		if !h.origins[hctx.Origin] {
//			return errors.New("origin not allowed")
//		}
//		return nil
//	}
package handler
