// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the gateway with the echo application, a metrics
// server and a health server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/absmach/wsgate"
	"github.com/absmach/wsgate/examples/echo"
	"github.com/absmach/wsgate/pkg/gateway"
	"github.com/absmach/wsgate/pkg/handler"
	"github.com/absmach/wsgate/pkg/handshake"
	"github.com/absmach/wsgate/pkg/health"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/ratelimit"
	"github.com/absmach/wsgate/pkg/server/tcp"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const maxGoroutines = 100000

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := wsgate.NewConfig(env.Options{Prefix: wsgate.EnvPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %s\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Warn("no .env file found, using environment variables")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("wsgate", reg)

	admission := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Minute)
	defer admission.Close()
	publishes := ratelimit.NewLimiter(cfg.PublishRateCapacity, cfg.PublishRateRefill, time.Minute)
	defer publishes.Close()

	var h handler.Handler = echo.NewHandler(logger)
	h = &rateLimitedHandler{handler: h, limiter: publishes, metrics: m, logger: logger}
	h = &instrumentedHandler{handler: h, metrics: m}

	stream := tcp.New(tcp.Config{
		ReadBufferSize:  cfg.ReadBufferSize,
		EventQueue:      cfg.EventQueue,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Limiter:         admission,
		Metrics:         m,
		Logger:          logger,
	})

	sock := gateway.New(gateway.Config{
		Negotiator: handshake.NewFactory(handshake.Config{
			Compression:             cfg.Compression,
			ServerMaxWindowBits:     cfg.ServerMaxWindowBits,
			ServerNoContextTakeover: cfg.ServerNoContextTakeover,
		}),
		Handler:          h,
		MaxPayload:       cfg.MaxPayload,
		CompressionLevel: cfg.CompressionLevel,
		InboundQueue:     cfg.InboundQueue,
		OutboundQueue:    cfg.OutboundQueue,
		MaxBacklog:       cfg.MaxBacklog,
		Metrics:          m,
		Logger:           logger,
	}, stream)

	for _, endpoint := range cfg.Endpoints {
		resolved, err := sock.Bind(endpoint)
		if err != nil {
			logger.Error("failed to bind endpoint",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()))
			sock.Close()
			os.Exit(1)
		}
		logger.Info("gateway listening", slog.String("endpoint", resolved))
	}

	checker := health.NewChecker(5 * time.Second)
	checker.RegisterCritical("dispatcher", sock.Check)
	checker.Register("goroutines", func(ctx context.Context) error {
		if n := runtime.NumGoroutine(); n > maxGoroutines {
			return fmt.Errorf("too many goroutines: %d > %d", n, maxGoroutines)
		}
		return nil
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	g.Go(func() error {
		return serveHTTP(ctx, "metrics", cfg.MetricsPort, metricsMux, logger)
	})

	g.Go(func() error {
		return serveHTTP(ctx, "health", cfg.HealthPort, checker.Mux(), logger)
	})

	g.Go(func() error {
		return sock.Listen(ctx)
	})

	g.Go(func() error {
		return echo.Serve(ctx, sock, logger)
	})

	// Signal handler
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("wsgate service terminated with error: %s", err))
	} else {
		logger.Info("wsgate service stopped")
	}
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// serveHTTP runs an HTTP server on port until ctx is canceled.
func serveHTTP(ctx context.Context, name string, port int, h http.Handler, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting "+name+" server", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	}
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
