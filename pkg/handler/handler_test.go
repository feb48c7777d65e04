// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"testing"
)

func TestNoopHandler(t *testing.T) {
	handler := &NoopHandler{}
	ctx := context.Background()
	hctx := &Context{
		SessionID:  "0A1B2C3D",
		RemoteAddr: "127.0.0.1:1234",
		Protocol:   "ws",
		Path:       "/",
		Host:       "localhost",
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{
			name: "AuthConnect",
			fn:   func() error { return handler.AuthConnect(ctx, hctx) },
		},
		{
			name: "AuthPublish",
			fn: func() error {
				parts := [][]byte{[]byte("payload")}
				return handler.AuthPublish(ctx, hctx, &parts)
			},
		},
		{
			name: "OnConnect",
			fn:   func() error { return handler.OnConnect(ctx, hctx) },
		},
		{
			name: "OnPublish",
			fn:   func() error { return handler.OnPublish(ctx, hctx, [][]byte{[]byte("payload")}) },
		},
		{
			name: "OnDisconnect",
			fn:   func() error { return handler.OnDisconnect(ctx, hctx) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Errorf("%s() returned error: %v", tt.name, err)
			}
		})
	}
}

// MockHandler is a mock implementation for testing.
type MockHandler struct {
	ConnectErr   error
	PublishErr   error
	OnConnectErr error

	ConnectCalled      bool
	PublishCalled      bool
	OnConnectCalled    bool
	OnPublishCalled    bool
	OnDisconnectCalled bool

	LastParts [][]byte
}

func (m *MockHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	m.ConnectCalled = true
	return m.ConnectErr
}

func (m *MockHandler) AuthPublish(ctx context.Context, hctx *Context, parts *[][]byte) error {
	m.PublishCalled = true
	m.LastParts = *parts
	*parts = append(*parts, []byte("stamp"))
	return m.PublishErr
}

func (m *MockHandler) OnConnect(ctx context.Context, hctx *Context) error {
	m.OnConnectCalled = true
	return m.OnConnectErr
}

func (m *MockHandler) OnPublish(ctx context.Context, hctx *Context, parts [][]byte) error {
	m.OnPublishCalled = true
	return nil
}

func (m *MockHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	m.OnDisconnectCalled = true
	return nil
}

func TestMockHandler(t *testing.T) {
	mock := &MockHandler{
		ConnectErr: errors.New("connection error"),
	}

	ctx := context.Background()
	hctx := &Context{SessionID: "0A1B"}

	// Test AuthConnect with error
	err := mock.AuthConnect(ctx, hctx)
	if err == nil {
		t.Error("Expected error from AuthConnect")
	}
	if !mock.ConnectCalled {
		t.Error("Expected ConnectCalled to be true")
	}

	// Test AuthPublish modifying parts
	parts := [][]byte{[]byte("ab"), []byte("cd")}
	if err := mock.AuthPublish(ctx, hctx, &parts); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.PublishCalled {
		t.Error("Expected PublishCalled to be true")
	}
	if len(mock.LastParts) != 2 {
		t.Errorf("Expected 2 parts, got %d", len(mock.LastParts))
	}
	if len(parts) != 3 || string(parts[2]) != "stamp" {
		t.Errorf("Expected parts to be modified, got %q", parts)
	}

	// Test notification methods
	if err := mock.OnConnect(ctx, hctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.OnConnectCalled {
		t.Error("Expected OnConnectCalled to be true")
	}

	if err := mock.OnDisconnect(ctx, hctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.OnDisconnectCalled {
		t.Error("Expected OnDisconnectCalled to be true")
	}
}
