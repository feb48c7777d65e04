// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package websocket implements the WebSocket frame codec of the gateway.
//
// # Overview
//
// The gateway never sees a net.Conn: the stream transport hands it raw
// byte chunks of arbitrary size. The Decoder is therefore an explicit,
// byte-at-a-time state machine whose position survives across Feed calls.
// A single frame may span many chunks and a single chunk may hold many
// frames plus a partial one.
//
// # Frame Layout
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-------+-+-------------+-------------------------------+
//	|F|R|R|R| opcode|M| Payload len |    Extended payload length    |
//	|I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
//	|N|V|V|V|       |S|             |   (if payload len==126/127)   |
//	| |1|2|3|       |K|             |                               |
//	+-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
//	|     Extended payload length continued, if payload len == 127  |
//	+ - - - - - - - - - - - - - - - +-------------------------------+
//	|                               |Masking-key, if MASK set to 1  |
//	+-------------------------------+-------------------------------+
//	| Masking-key (continued)       |          Payload Data         |
//	+-------------------------------- - - - - - - - - - - - - - - - +
//
// # Decoder States
//
//	StateHeader → StateLength → [StateShortSize x2 | StateLongSize x8]
//	            → [StateMask x4] → StateBeginPayload → StatePayload → StateHeader
//
// Any violation moves the decoder to StateError, which is sticky:
//   - FIN bit cleared (protocol-level fragmentation is unsupported)
//   - opcode other than binary, close, ping or pong
//   - a 64-bit length whose upper four bytes are not zero
//   - a length above the configured payload limit
//
// # Encoder
//
// Server-to-client frames are always final and never masked. RSV1 marks
// frames compressed with permessage-deflate:
//
//	byte 0: 0x80 | opcode (| 0x40 when compressed)
//	byte 1: length < 126 literal, 126 + uint16, 127 + uint64 (top 4 bytes zero)
package websocket
