// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for wsgate.
package metrics

import (
	"errors"
	"time"

	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/parser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	ReasonUnknownRecipient = "unknown_recipient"
	ReasonNotConnected     = "not_connected"
	ReasonRejected         = "rejected"
	ReasonBacklog          = "backlog_full"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	Handshakes      *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Traffic metrics
	Frames      *prometheus.CounterVec
	Bytes       *prometheus.CounterVec
	Messages    *prometheus.CounterVec
	MessageSize *prometheus.HistogramVec

	// Hook metrics
	HookCalls *prometheus.CounterVec

	// Failure metrics
	Failures *prometheus.CounterVec
	Dropped  *prometheus.CounterVec

	// Transport metrics
	TransportConnections prometheus.Gauge
	RateLimited          prometheus.Counter
}

// New creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wsgate"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of connection agents owned by the dispatcher",
			},
		),
		Handshakes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshakes_total",
				Help:      "Total number of WebSocket handshakes",
			},
			[]string{"result", "compression"},
		),
		SessionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Connected session duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 3600},
			},
		),
		Frames: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_frames_total",
				Help:      "Total number of WebSocket frames",
			},
			[]string{"frame_type", "direction"},
		),
		Bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payload_bytes_total",
				Help:      "Total number of frame payload bytes on the wire",
			},
			[]string{"direction"},
		),
		Messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_messages_total",
				Help:      "Total number of bus messages",
			},
			[]string{"direction"},
		),
		MessageSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bus_message_size_bytes",
				Help:      "Bus message content size in bytes",
				Buckets:   []float64{16, 128, 1024, 8192, 65536, 524288, 4194304},
			},
			[]string{"direction"},
		),
		HookCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_calls_total",
				Help:      "Total number of session hook calls",
			},
			[]string{"hook", "result"},
		),
		Failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_failures_total",
				Help:      "Total number of sessions terminated by an error",
			},
			[]string{"error_type"},
		),
		Dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_messages_total",
				Help:      "Total number of bus messages dropped",
			},
			[]string{"reason"},
		),
		TransportConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transport_connections",
				Help:      "Number of open TCP connections",
			},
		),
		RateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_connections_total",
				Help:      "Total number of connections and messages refused by rate limiting",
			},
		),
	}
}

// ObserveFrame counts a frame of type frameType and its payload size.
func (m *Metrics) ObserveFrame(frameType string, dir parser.Direction, size int) {
	m.Frames.WithLabelValues(frameType, dir.String()).Inc()
	m.Bytes.WithLabelValues(dir.String()).Add(float64(size))
}

// ObserveMessage counts a bus message and its content size.
func (m *Metrics) ObserveMessage(dir parser.Direction, size int) {
	m.Messages.WithLabelValues(dir.String()).Inc()
	m.MessageSize.WithLabelValues(dir.String()).Observe(float64(size))
}

// ObserveHook counts a hook call by outcome.
func (m *Metrics) ObserveHook(hook string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.HookCalls.WithLabelValues(hook, result).Inc()
}

// ObserveHandshake counts a handshake outcome.
func (m *Metrics) ObserveHandshake(accepted, compressed bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	compression := "off"
	if compressed {
		compression = "on"
	}
	m.Handshakes.WithLabelValues(result, compression).Inc()
}

// ObserveSession records the lifetime of a connected session.
func (m *Metrics) ObserveSession(start time.Time) {
	m.SessionDuration.Observe(time.Since(start).Seconds())
}

// ObserveFailure counts a session-terminating error.
func (m *Metrics) ObserveFailure(err error) {
	m.Failures.WithLabelValues(ErrorType(err)).Inc()
}

// ObserveDrop counts a dropped bus message.
func (m *Metrics) ObserveDrop(reason string) {
	m.Dropped.WithLabelValues(reason).Inc()
}

// ErrorType maps err to a low-cardinality label value.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, gwerrors.ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, gwerrors.ErrCompressionFailure):
		return "compression_failure"
	case errors.Is(err, gwerrors.ErrHandshakeFailure):
		return "handshake_failure"
	case errors.Is(err, gwerrors.ErrNotConnected):
		return "not_connected"
	default:
		return "transport"
	}
}
