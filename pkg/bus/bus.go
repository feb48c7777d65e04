// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bus defines the multi-part message exchanged between the gateway
// and the application.
//
// The first part of every message is the hex identity of a WebSocket client.
// Inbound messages carry the reassembled content parts after it; outbound
// messages carry one part per wire frame to be sent.
package bus

import (
	"bytes"
	"errors"
)

// ErrMalformed indicates a message without an identity or content.
var ErrMalformed = errors.New("malformed bus message")

// Message is an ordered list of parts headed by a client identity.
type Message [][]byte

// New builds a message addressed to identity.
func New(identity string, parts ...[]byte) Message {
	m := make(Message, 0, len(parts)+1)
	m = append(m, []byte(identity))
	return append(m, parts...)
}

// Identity returns the identity part, or an empty string.
func (m Message) Identity() string {
	if len(m) == 0 {
		return ""
	}
	return string(m[0])
}

// Parts returns the content parts that follow the identity.
func (m Message) Parts() [][]byte {
	if len(m) < 2 {
		return nil
	}
	return m[1:]
}

// Content concatenates every content part.
func (m Message) Content() []byte {
	return bytes.Join(m.Parts(), nil)
}

// Size returns the number of content bytes.
func (m Message) Size() int {
	n := 0
	for _, p := range m.Parts() {
		n += len(p)
	}
	return n
}

// Validate checks that m is addressable and carries at least one part.
func (m Message) Validate() error {
	if len(m) < 2 || len(m[0]) == 0 {
		return ErrMalformed
	}
	return nil
}
