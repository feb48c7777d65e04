// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser holds the wire-format codecs of the gateway.
//
// # Direction
//
// Traffic crosses the gateway in two directions:
//   - Upstream (Client → Bus): raw WebSocket bytes are decoded, unmasked,
//     inflated and reassembled into bus messages
//   - Downstream (Bus → Client): bus message parts are deflated and framed
//     as unmasked binary WebSocket frames
//
// The Direction type is used to label metrics and log records.
//
// # Protocol Codecs
//
//   - parser/websocket: incremental frame decoder and server frame encoder
package parser
