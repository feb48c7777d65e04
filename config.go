// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wsgate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/klauspost/compress/flate"
)

// EnvPrefix is the prefix of every environment variable read by NewConfig.
const EnvPrefix = "WSGATE_"

var (
	ErrNoEndpoints      = errors.New("at least one endpoint is required")
	ErrInvalidWindow    = errors.New("server max window bits must be 0 or in range 8-15")
	ErrInvalidLevel     = errors.New("invalid compression level")
	ErrLevelWithWindow  = errors.New("compression level requires the full 15-bit server window")
	ErrInvalidLogFormat = errors.New("log format must be json or text")
)

// Config holds the gateway runtime configuration.
type Config struct {
	Endpoints []string `env:"ENDPOINTS" envDefault:"tcp://*:8080" envSeparator:","`

	// Compression
	Compression             bool `env:"COMPRESSION"                envDefault:"true"`
	ServerMaxWindowBits     int  `env:"SERVER_MAX_WINDOW_BITS"     envDefault:"0"`
	ServerNoContextTakeover bool `env:"SERVER_NO_CONTEXT_TAKEOVER" envDefault:"false"`
	// CompressionLevel only applies to the full 15-bit window. Smaller
	// windows compress at a fixed level.
	CompressionLevel int `env:"COMPRESSION_LEVEL" envDefault:"-1"`

	// Dispatcher
	MaxPayload    int `env:"MAX_PAYLOAD"    envDefault:"0"`
	InboundQueue  int `env:"INBOUND_QUEUE"  envDefault:"1024"`
	OutboundQueue int `env:"OUTBOUND_QUEUE" envDefault:"1024"`
	MaxBacklog    int `env:"MAX_BACKLOG"    envDefault:"65536"`

	// Transport
	ReadBufferSize    int           `env:"READ_BUFFER_SIZE"    envDefault:"32768"`
	EventQueue        int           `env:"EVENT_QUEUE"         envDefault:"1024"`
	RateLimitCapacity int64         `env:"RATE_LIMIT_CAPACITY" envDefault:"0"`
	RateLimitRefill   int64         `env:"RATE_LIMIT_REFILL"   envDefault:"10"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"    envDefault:"30s"`

	// Per-session publish rate
	PublishRateCapacity int64 `env:"PUBLISH_RATE_CAPACITY" envDefault:"0"`
	PublishRateRefill   int64 `env:"PUBLISH_RATE_REFILL"   envDefault:"100"`

	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8081"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`
}

// NewConfig parses the configuration from the environment described by opts.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate checks value ranges that env tags cannot express.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	if c.ServerMaxWindowBits != 0 && (c.ServerMaxWindowBits < 8 || c.ServerMaxWindowBits > 15) {
		return fmt.Errorf("%w: %d", ErrInvalidWindow, c.ServerMaxWindowBits)
	}
	if c.CompressionLevel < flate.HuffmanOnly || c.CompressionLevel > flate.BestCompression {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, c.CompressionLevel)
	}
	if c.ServerMaxWindowBits != 0 && c.ServerMaxWindowBits < 15 && c.CompressionLevel != flate.DefaultCompression {
		return fmt.Errorf("%w: level %d with %d window bits", ErrLevelWithWindow, c.CompressionLevel, c.ServerMaxWindowBits)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}

	return nil
}
