// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package compression

import "errors"

// Config selects the negotiated window bits of each direction.
// Zero bits disable compression for that direction.
type Config struct {
	// InboundBits is the client's compression window (client_max_window_bits).
	InboundBits int

	// OutboundBits is the gateway's compression window (server_max_window_bits).
	OutboundBits int

	// OutboundNoContextTakeover resets the compressor after every message.
	OutboundNoContextTakeover bool

	// Level is the deflate compression level. It only applies to the full
	// 15-bit window; smaller windows use a fixed level.
	Level int

	// MaxInflated bounds the size of one inflated inbound message.
	// Zero means no limit.
	MaxInflated int
}

// Context is the pair of compression streams owned by one connection.
type Context struct {
	In  *Inflater
	Out *Deflater
}

// New initializes the enabled directions of cfg. On error nothing is left allocated.
func New(cfg Config) (*Context, error) {
	c := &Context{}

	if cfg.InboundBits > 0 {
		in, err := NewInflater(cfg.InboundBits, cfg.MaxInflated)
		if err != nil {
			return nil, err
		}
		c.In = in
	}

	if cfg.OutboundBits > 0 {
		out, err := NewDeflater(cfg.OutboundBits, cfg.Level, cfg.OutboundNoContextTakeover)
		if err != nil {
			c.Release()
			return nil, err
		}
		c.Out = out
	}

	return c, nil
}

// Inflate decompresses payload, or returns it unchanged when inbound
// compression is disabled.
func (c *Context) Inflate(payload []byte) ([]byte, error) {
	if c.In == nil {
		return payload, nil
	}
	return c.In.Inflate(payload)
}

// Compressed reports whether outbound frames are compressed.
func (c *Context) Compressed() bool {
	return c.Out != nil
}

// Release frees both streams. It is safe to call more than once.
func (c *Context) Release() error {
	var errs []error
	if c.In != nil {
		errs = append(errs, c.In.Close())
		c.In = nil
	}
	if c.Out != nil {
		errs = append(errs, c.Out.Close())
		c.Out = nil
	}
	return errors.Join(errs...)
}
