// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package compression implements the permessage-deflate streams of a
// WebSocket connection.
//
// # Overview
//
// A Context holds two independent raw-deflate streams:
//   - In (Inflater): decompresses client frames
//   - Out (Deflater): compresses server frames
//
// A nil side means compression was not negotiated for that direction and
// payloads pass through unchanged.
//
// # Trailer Convention
//
// Senders flush every message with a sync flush and strip the trailing
// empty stored block (00 00 FF FF). The Inflater appends it back before
// inflating; the Deflater strips it after flushing.
//
// # Context Takeover
//
// Both streams keep their sliding window across messages. The Inflater
// seeds every message with the last 2^bits bytes of previous output; the
// Deflater keeps one writer alive and only resets it when the peer asked
// for server_no_context_takeover.
package compression
