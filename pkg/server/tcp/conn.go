// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"net"
	"sync"

	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/eapache/queue"
)

// conn is one accepted peer. Writes are queued on an unbounded FIFO and
// written by a dedicated goroutine, so senders never block on the network.
type conn struct {
	id []byte
	nc net.Conn

	mu      sync.Mutex
	pending *queue.Queue
	closing bool
	aborted bool
	wake    chan struct{}
}

func newConn(id []byte, nc net.Conn) *conn {
	return &conn{
		id:      id,
		nc:      nc,
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
	}
}

// enqueue appends data to the write queue. Empty data marks the end of the
// stream.
func (c *conn) enqueue(data []byte) error {
	c.mu.Lock()
	if c.closing || c.aborted {
		c.mu.Unlock()
		return gwerrors.ErrNotConnected
	}
	if len(data) == 0 {
		c.closing = true
	}
	c.pending.Add(data)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// next pops the head of the queue. It returns false when the writer must
// stop.
func (c *conn) next() ([]byte, bool) {
	for {
		c.mu.Lock()
		if c.aborted {
			c.mu.Unlock()
			return nil, false
		}
		if c.pending.Length() > 0 {
			data := c.pending.Remove().([]byte)
			c.mu.Unlock()
			return data, len(data) > 0
		}
		c.mu.Unlock()

		<-c.wake
	}
}

func (c *conn) drain() error {
	for {
		data, ok := c.next()
		if !ok {
			return nil
		}
		if _, err := c.nc.Write(data); err != nil {
			c.abort()
			return err
		}
	}
}

// abort discards queued writes, stops the writer and closes the socket.
func (c *conn) abort() {
	c.mu.Lock()
	if !c.aborted {
		c.aborted = true
		for c.pending.Length() > 0 {
			c.pending.Remove()
		}
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.nc.Close()
}
