// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements an identity-tagged TCP stream transport for wsgate.
//
// # Overview
//
// The server accepts raw TCP connections on one or more bound endpoints and
// hides them behind opaque identities. The consumer never sees a net.Conn:
// it receives events tagged with an identity and sends bytes addressed to
// one.
//
//	┌─────────┐         ┌──────────┐  Events()   ┌────────────┐
//	│ Client  │ ←─TCP─→ │  Server  │ ──────────→ │ Dispatcher │
//	└─────────┘         └──────────┘ ←────────── └────────────┘
//	                                  Send(id, b)
//
// # Connection Flow
//
//  1. Client connects to a bound endpoint
//  2. Admission control is consulted for the client host
//  3. Server assigns a random 16-byte identity (UUID)
//  4. Server spawns two goroutines:
//     - Reader: emits EventConnected, then EventData per read
//     - Writer: drains the connection's write queue
//  5. Send(id, nil) closes the connection once queued data is written
//  6. Reader emits EventDisconnected when the socket is gone
//
// Events of a single connection are emitted in order. The event channel is
// bounded and provides backpressure to the readers.
//
// # Write Queue
//
// Each connection owns an unbounded FIFO (eapache/queue). Send only appends
// to it, so a slow peer never blocks the caller.
//
// # Endpoints
//
// Endpoints use the form tcp://host:port. A "*" host listens on every
// interface and port 0 picks a free port; Bind returns the resolved endpoint.
//
// # Graceful Shutdown
//
// Close:
//
//  1. Stops every listener
//  2. Drops events not yet delivered
//  3. Closes every connection after its queued writes
//  4. After ShutdownTimeout, forcefully closes remaining connections and
//     returns ErrShutdownTimeout
//  5. Closes the event channel
//
// # Example
//
//	srv := tcp.New(tcp.Config{ShutdownTimeout: 5 * time.Second})
//	endpoint, err := srv.Bind("tcp://*:8080")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for ev := range srv.Events() {
//		if ev.Type == tcp.EventData {
//			srv.Send(ev.Identity, ev.Data)
//		}
//	}
package tcp
