// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handshake negotiates the opening HTTP upgrade of a WebSocket
// connection.
//
// A Negotiator is fed the raw bytes of the first client transmission. When
// ParseRequest accepts them, Response returns the 101 Switching Protocols
// reply together with the negotiated permessage-deflate parameters. A window
// factor of zero means compression is disabled for that direction.
//
// The default implementation parses the request with gobwas/ws and
// negotiates the extension with gobwas/ws/wsflate. It never touches the
// network: the request is read from memory and the response is buffered.
package handshake
