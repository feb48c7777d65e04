// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wsgate

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Endpoints, []string{"tcp://*:8080"}) {
		t.Errorf("Endpoints = %v", cfg.Endpoints)
	}
	if !cfg.Compression {
		t.Error("Compression should default to true")
	}
	if cfg.CompressionLevel != -1 {
		t.Errorf("CompressionLevel = %d, want -1", cfg.CompressionLevel)
	}
	if cfg.InboundQueue != 1024 || cfg.OutboundQueue != 1024 {
		t.Errorf("queues = %d/%d, want 1024/1024", cfg.InboundQueue, cfg.OutboundQueue)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Errorf("log = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestNewConfigFromEnvironment(t *testing.T) {
	environ := map[string]string{
		"WSGATE_ENDPOINTS":              "tcp://127.0.0.1:9000,tcp://*:9001",
		"WSGATE_COMPRESSION":            "false",
		"WSGATE_SERVER_MAX_WINDOW_BITS": "10",
		"WSGATE_MAX_PAYLOAD":            "65536",
		"WSGATE_RATE_LIMIT_CAPACITY":    "5",
		"WSGATE_SHUTDOWN_TIMEOUT":       "5s",
		"WSGATE_LOG_FORMAT":             "text",
	}
	cfg, err := NewConfig(env.Options{Prefix: EnvPrefix, Environment: environ})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Endpoints, []string{"tcp://127.0.0.1:9000", "tcp://*:9001"}) {
		t.Errorf("Endpoints = %v", cfg.Endpoints)
	}
	if cfg.Compression {
		t.Error("Compression should be disabled")
	}
	if cfg.ServerMaxWindowBits != 10 {
		t.Errorf("ServerMaxWindowBits = %d, want 10", cfg.ServerMaxWindowBits)
	}
	if cfg.MaxPayload != 65536 {
		t.Errorf("MaxPayload = %d, want 65536", cfg.MaxPayload)
	}
	if cfg.RateLimitCapacity != 5 {
		t.Errorf("RateLimitCapacity = %d, want 5", cfg.RateLimitCapacity)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestNewConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"window too small", map[string]string{"WSGATE_SERVER_MAX_WINDOW_BITS": "7"}, ErrInvalidWindow},
		{"window too large", map[string]string{"WSGATE_SERVER_MAX_WINDOW_BITS": "16"}, ErrInvalidWindow},
		{"level too high", map[string]string{"WSGATE_COMPRESSION_LEVEL": "10"}, ErrInvalidLevel},
		{"level too low", map[string]string{"WSGATE_COMPRESSION_LEVEL": "-3"}, ErrInvalidLevel},
		{"level with small window", map[string]string{
			"WSGATE_SERVER_MAX_WINDOW_BITS": "10",
			"WSGATE_COMPRESSION_LEVEL":      "9",
		}, ErrLevelWithWindow},
		{"unknown log format", map[string]string{"WSGATE_LOG_FORMAT": "xml"}, ErrInvalidLogFormat},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewConfig(env.Options{Prefix: EnvPrefix, Environment: c.env})
			if !errors.Is(err, c.want) {
				t.Errorf("NewConfig() error = %v, want %v", err, c.want)
			}
		})
	}
}

func TestNewConfigParseError(t *testing.T) {
	_, err := NewConfig(env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{"WSGATE_MAX_PAYLOAD": "lots"},
	})
	if err == nil {
		t.Fatal("expected a parse error")
	}
}
