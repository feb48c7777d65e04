// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"testing"
)

func TestGatewayError(t *testing.T) {
	err := New("decode", "0A0B", "127.0.0.1:5000", ErrProtocolViolation)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected errors.Is to match ErrProtocolViolation, got %v", err)
	}

	want := "decode [0A0B] 127.0.0.1:5000: protocol violation"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		t.Fatal("expected errors.As to find *GatewayError")
	}
	if gerr.SessionID != "0A0B" {
		t.Errorf("SessionID = %q, want %q", gerr.SessionID, "0A0B")
	}
}

func TestNilErrors(t *testing.T) {
	if New("op", "id", "", nil) != nil {
		t.Error("New(nil) should return nil")
	}
}
