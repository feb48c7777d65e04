// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package websocket

import "math"

// State is the parse position of a Decoder.
type State int

const (
	StateHeader State = iota // awaiting header byte 1
	StateLength              // awaiting header byte 2
	StateShortSize
	StateShortSize2
	StateLongSize
	StateLongSize2
	StateLongSize3
	StateLongSize4
	StateLongSize5
	StateLongSize6
	StateLongSize7
	StateLongSize8
	StateMask
	StateMask2
	StateMask3
	StateMask4
	StateBeginPayload
	StatePayload
	StateError
)

const (
	finalBit = 0x80
	rsv1Bit  = 0x40
	maskBit  = 0x80

	lengthMask   = 0x7F
	length16Code = 126
	length64Code = 127

	// payloadSlack is spare capacity reserved past every payload so the
	// inflater can append the permessage-deflate tail without reallocating.
	payloadSlack = 4
)

// Decoder incrementally parses client-to-server WebSocket frames.
// Its state survives across Feed calls, so frames may be split at any byte
// boundary. A Decoder is not safe for concurrent use.
type Decoder struct {
	state      State
	opcode     Opcode
	masked     bool
	mask       [4]byte
	length     uint64
	index      int
	payload    []byte
	maxPayload uint64
}

// NewDecoder returns a Decoder awaiting the first header byte.
// maxPayload bounds the accepted frame payload; zero means no limit beyond
// the 32-bit length the gateway supports.
func NewDecoder(maxPayload int) *Decoder {
	limit := uint64(math.MaxUint32)
	if maxPayload > 0 && uint64(maxPayload) < limit {
		limit = uint64(maxPayload)
	}
	if ceiling := uint64(math.MaxInt - payloadSlack); limit > ceiling {
		limit = ceiling
	}
	return &Decoder{
		state:      StateHeader,
		maxPayload: limit,
	}
}

// State returns the current parse position.
func (d *Decoder) State() State {
	return d.state
}

// Errored reports whether the decoder hit a protocol violation. The errored
// state is terminal: all further input is ignored.
func (d *Decoder) Errored() bool {
	return d.state == StateError
}

// Feed consumes p and returns the frames completed by it, in order.
// Payloads of returned events are owned by the caller.
func (d *Decoder) Feed(p []byte) []Event {
	var events []Event

	for i := 0; i < len(p); {
		switch d.state {
		case StateError:
			return events

		case StateBeginPayload, StatePayload:
			if d.state == StateBeginPayload {
				d.index = 0
				d.payload = make([]byte, int(d.length), int(d.length)+payloadSlack)
				d.state = StatePayload
			}

			n := copy(d.payload[d.index:], p[i:])
			if d.masked {
				Mask(d.mask, d.index, d.payload[d.index:d.index+n])
			}
			d.index += n
			i += n

			if d.index == len(d.payload) {
				events = append(events, d.complete())
			}

		default:
			if ev, ok := d.advance(p[i]); ok {
				events = append(events, ev)
			}
			i++
		}
	}

	return events
}

// advance moves the header state machine forward by one byte. It returns an
// event when the byte completes a frame with an empty payload.
func (d *Decoder) advance(b byte) (Event, bool) {
	switch d.state {
	case StateHeader:
		d.opcode = Opcode(b & 0x0F)
		switch {
		case b&finalBit == 0:
			d.state = StateError
		case !d.opcode.supported():
			d.state = StateError
		default:
			d.state = StateLength
		}

	case StateLength:
		d.masked = b&maskBit != 0
		switch code := b & lengthMask; code {
		case length16Code:
			d.state = StateShortSize
		case length64Code:
			d.state = StateLongSize
		default:
			d.length = uint64(code)
			return d.lengthDone()
		}

	case StateShortSize:
		d.length = uint64(b) << 8
		d.state = StateShortSize2

	case StateShortSize2:
		d.length |= uint64(b)
		return d.lengthDone()

	case StateLongSize, StateLongSize2, StateLongSize3, StateLongSize4:
		// The high half must be zero: lengths are bounded to 32 bits.
		if b != 0 {
			d.state = StateError
			break
		}
		d.length = 0
		d.state++

	case StateLongSize5, StateLongSize6, StateLongSize7:
		d.length = d.length<<8 | uint64(b)
		d.state++

	case StateLongSize8:
		d.length = d.length<<8 | uint64(b)
		return d.lengthDone()

	case StateMask, StateMask2, StateMask3:
		d.mask[d.state-StateMask] = b
		d.state++

	case StateMask4:
		d.mask[3] = b
		return d.headerDone()
	}

	return Event{}, false
}

func (d *Decoder) lengthDone() (Event, bool) {
	if d.length > d.maxPayload {
		d.state = StateError
		return Event{}, false
	}
	if d.masked {
		d.state = StateMask
		return Event{}, false
	}
	return d.headerDone()
}

func (d *Decoder) headerDone() (Event, bool) {
	if d.length == 0 {
		return d.complete(), true
	}
	d.state = StateBeginPayload
	return Event{}, false
}

func (d *Decoder) complete() Event {
	ev := Event{
		Type:    eventType(d.opcode),
		Payload: d.payload,
	}
	d.payload = nil
	d.index = 0
	d.state = StateHeader
	return ev
}

// Mask XORs p with key, treating p[0] as the payload byte at offset.
// Masking is its own inverse.
func Mask(key [4]byte, offset int, p []byte) {
	for i := range p {
		p[i] ^= key[(offset+i)%4]
	}
}
