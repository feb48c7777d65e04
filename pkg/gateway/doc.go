// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package gateway multiplexes WebSocket clients onto a message-oriented
// socket.
//
// A single dispatcher goroutine waits on three sources at once:
//
//   - the control channel: BIND, UNBIND and $TERM commands
//   - the transport events: connections, data and disconnections, each
//     tagged with a peer identity
//   - the outbound channel: bus messages addressed by client identity
//
// It owns the table of connection agents keyed by the upper-case hex form of
// the identity. Agent state is never touched outside of that goroutine, so
// no locking is needed; the Socket handle only exchanges messages with it.
//
// Inbound, the dispatcher creates an agent for every identity it has not seen,
// feeds it the transport bytes in arrival order and drops it once it reaches
// EXCEPTION. Messages reassembled by the agents are queued and handed to
// Recv. Outbound, Send routes a message to the agent named by its first part;
// messages for unknown identities are dropped.
//
// Example:
//
//	srv := tcp.New(tcp.Config{})
//	sock := gateway.New(gateway.Config{}, srv)
//	defer sock.Close()
//
//	if _, err := sock.Bind("tcp://*:8080"); err != nil {
//		log.Fatal(err)
//	}
//	for {
//		msg, err := sock.Recv(ctx)
//		if err != nil {
//			return err
//		}
//		sock.Send(ctx, msg) // echo
//	}
package gateway
