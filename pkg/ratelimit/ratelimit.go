// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides connection admission control using the token
// bucket algorithm.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full token bucket.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		now:        now,
	}
}

// Allow takes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Full reports whether the bucket has refilled completely.
func (tb *TokenBucket) Full() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens >= tb.capacity
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Limiter tracks one token bucket per remote host. A zero capacity disables
// admission control.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	capacity   int64
	refillRate int64
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewLimiter creates a per-host limiter. Buckets that refilled completely are
// evicted every sweep interval.
func NewLimiter(capacity, refillRate int64, sweep time.Duration) *Limiter {
	if sweep <= 0 {
		sweep = time.Minute
	}

	l := &Limiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if capacity > 0 {
		go l.sweep(sweep)
	}

	return l
}

// Allow reports whether a new connection from host may be admitted.
func (l *Limiter) Allow(host string) bool {
	if l == nil || l.capacity <= 0 {
		return true
	}

	l.mu.Lock()
	tb, ok := l.buckets[host]
	if !ok {
		tb = newTokenBucket(l.capacity, l.refillRate, l.now)
		l.buckets[host] = tb
	}
	l.mu.Unlock()

	return tb.Allow()
}

// Hosts returns the number of tracked hosts.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Evict drops buckets that no longer constrain their host.
func (l *Limiter) Evict() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for host, tb := range l.buckets {
		if tb.Full() {
			delete(l.buckets, host)
		}
	}
}

func (l *Limiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Evict()
		case <-l.stop:
			return
		}
	}
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}
