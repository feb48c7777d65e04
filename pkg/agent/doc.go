// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the per-client protocol state of the gateway.
//
// An Agent is created for every transport identity the dispatcher has not
// seen before. It moves through three states:
//
//	CLOSED --(handshake accepted)--> CONNECTED --(error or close)--> EXCEPTION
//	CLOSED --(handshake rejected)--> EXCEPTION
//
// In CLOSED the first non-empty transmission is the HTTP upgrade request.
// In CONNECTED every transmission is fed to a websocket.Decoder and the
// decoded binary frames are inflated, stripped of their continuation marker
// and reassembled into a single bus message. EXCEPTION is terminal: inbound
// data is discarded until the dispatcher drops the agent.
//
// Outbound bus messages are framed one part per WebSocket frame, with the
// continuation marker set on every part but the last.
//
// An Agent is not safe for concurrent use. The dispatcher owns it.
package agent
