// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package websocket

import "fmt"

// Opcode classifies a WebSocket frame.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// String returns a string representation of the opcode.
func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(0x%X)", byte(op))
	}
}

// supported reports whether the gateway accepts frames with this opcode.
// Continuation and text frames are rejected: the wire protocol is binary-only
// and multi-part messages use the continuation marker byte instead.
func (op Opcode) supported() bool {
	switch op {
	case OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}

// EventType identifies the kind of completed frame reported by the Decoder.
type EventType int

const (
	// EventMessage is a completed binary frame.
	EventMessage EventType = iota
	// EventClose is a completed close frame.
	EventClose
	// EventPing is a completed ping frame.
	EventPing
	// EventPong is a completed pong frame.
	EventPong
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventPing:
		return "ping"
	case EventPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Opcode returns the frame opcode the event was decoded from.
func (t EventType) Opcode() Opcode {
	switch t {
	case EventClose:
		return OpClose
	case EventPing:
		return OpPing
	case EventPong:
		return OpPong
	default:
		return OpBinary
	}
}

func eventType(op Opcode) EventType {
	switch op {
	case OpClose:
		return EventClose
	case OpPing:
		return EventPing
	case OpPong:
		return EventPong
	default:
		return EventMessage
	}
}

// Event is a fully received and unmasked frame.
type Event struct {
	Type    EventType
	Payload []byte
}
