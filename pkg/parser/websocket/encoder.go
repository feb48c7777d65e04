// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package websocket

import "encoding/binary"

// MaxHeaderSize is the largest server-to-client frame header.
const MaxHeaderSize = 10

// HeaderSize returns the size of an unmasked frame header for a payload of n bytes.
func HeaderSize(n int) int {
	switch {
	case n < length16Code:
		return 2
	case n <= 0xFFFF:
		return 4
	default:
		return MaxHeaderSize
	}
}

// AppendHeader appends an unmasked, final frame header to dst. RSV1 is set
// when compressed is true. Server-to-client frames are never masked.
func AppendHeader(dst []byte, op Opcode, compressed bool, n int) []byte {
	b0 := finalBit | byte(op)
	if compressed {
		b0 |= rsv1Bit
	}

	switch {
	case n < length16Code:
		return append(dst, b0, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b0, length16Code)
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, length64Code)
		return binary.BigEndian.AppendUint64(dst, uint64(n))
	}
}

// Frame returns a complete server-to-client frame carrying payload.
func Frame(op Opcode, compressed bool, payload []byte) []byte {
	frame := make([]byte, 0, HeaderSize(len(payload))+len(payload))
	frame = AppendHeader(frame, op, compressed, len(payload))
	return append(frame, payload...)
}
