// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

// Direction indicates the direction of traffic through the gateway.
type Direction int

const (
	// Upstream represents frames flowing from the WebSocket client to the bus.
	Upstream Direction = iota

	// Downstream represents messages flowing from the bus to the WebSocket client.
	Downstream
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}
