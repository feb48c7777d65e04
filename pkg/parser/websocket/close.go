// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package websocket

import (
	"encoding/binary"
	"strings"
)

// ParseClose extracts the status code and reason of a close frame payload.
// ok is false when the payload is too short to carry a status code.
func ParseClose(payload []byte) (code uint16, reason string, ok bool) {
	if len(payload) < 2 {
		return 0, "", false
	}
	code = binary.BigEndian.Uint16(payload)
	reason = strings.ToValidUTF8(string(payload[2:]), "�")
	return code, reason, true
}
