// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/ratelimit"
)

var (
	_ handler.Handler = (*rateLimitedHandler)(nil)
	_ handler.Handler = (*instrumentedHandler)(nil)
)

// rateLimitedHandler limits the message rate of every session.
type rateLimitedHandler struct {
	handler handler.Handler
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func (h *rateLimitedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.AuthConnect(ctx, hctx)
}

// AuthPublish implements handler.Handler with rate limiting.
func (h *rateLimitedHandler) AuthPublish(ctx context.Context, hctx *handler.Context, parts *[][]byte) error {
	if !h.limiter.Allow(hctx.SessionID) {
		h.metrics.RateLimited.Inc()
		h.logger.Warn("publish rate limit exceeded",
			slog.String("session", hctx.SessionID),
			slog.String("remote", hctx.RemoteAddr))
		return gwerrors.ErrRateLimited
	}

	return h.handler.AuthPublish(ctx, hctx, parts)
}

func (h *rateLimitedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

func (h *rateLimitedHandler) OnPublish(ctx context.Context, hctx *handler.Context, parts [][]byte) error {
	return h.handler.OnPublish(ctx, hctx, parts)
}

func (h *rateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// instrumentedHandler counts hook calls by outcome.
type instrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
}

func (h *instrumentedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	err := h.handler.AuthConnect(ctx, hctx)
	h.metrics.ObserveHook("auth_connect", err)
	return err
}

func (h *instrumentedHandler) AuthPublish(ctx context.Context, hctx *handler.Context, parts *[][]byte) error {
	err := h.handler.AuthPublish(ctx, hctx, parts)
	h.metrics.ObserveHook("auth_publish", err)
	return err
}

func (h *instrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	err := h.handler.OnConnect(ctx, hctx)
	h.metrics.ObserveHook("on_connect", err)
	return err
}

func (h *instrumentedHandler) OnPublish(ctx context.Context, hctx *handler.Context, parts [][]byte) error {
	err := h.handler.OnPublish(ctx, hctx, parts)
	h.metrics.ObserveHook("on_publish", err)
	return err
}

func (h *instrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	err := h.handler.OnDisconnect(ctx, hctx)
	h.metrics.ObserveHook("on_disconnect", err)
	return err
}
