// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command enrich starts the Tessera enrichment API server.
//
// The server matches interview segments against the NIOD WW2 thesaurus
// using exact occurrence, embedding similarity and top-down hierarchical
// classification. The thesaurus and the concept embedding index load in a
// background warmup; until warmup completes the enrichment endpoint answers
// 503 with a Retry-After header.
//
// Usage:
//
//	go run ./cmd/enrich
//	go run ./cmd/enrich -port 9090
//
// With a config file:
//
//	ENRICH_CONFIG=/etc/tessera/enrich.yaml go run ./cmd/enrich
//
// Example requests:
//
//	# Health and loaded-resource stats
//	curl http://localhost:8080/v1/enrich/health
//
//	# Match one segment
//	curl -X POST http://localhost:8080/v1/enrich/segment \
//	  -H "Content-Type: application/json" \
//	  -d '{"text": "Hij zat ondergedoken in Amsterdam."}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/TesseraAI/tessera/services/enrich"
	"github.com/TesseraAI/tessera/services/enrich/config"
)

// WarmupGuardMiddleware returns 503 Service Unavailable for enrichment
// requests while the thesaurus and embedding index are still loading.
//
// Description:
//
//	Warmup downloads the thesaurus export and embeds every descriptive
//	concept, which can take minutes on a cold cache. Without this guard,
//	early requests would hit a nil runtime and fail with opaque errors.
//
// Behavior:
//
//   - Returns 503 with Retry-After header if warmup not complete
//   - Creates an OTel span for rejected requests with trace context from headers
//   - Passes through to handler if warmup is complete
//   - The health endpoint is not guarded (registered on a different route)
//
// Thread Safety: This middleware is safe for concurrent use.
func WarmupGuardMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enrich.IsWarmupComplete() {
			// The otelgin middleware has already extracted trace context
			// from the incoming headers.
			ctx := c.Request.Context()
			_, span := otel.Tracer("tessera.enrich").Start(ctx, "warmup_guard.reject",
				oteltrace.WithAttributes(
					attribute.String("path", c.Request.URL.Path),
					attribute.String("method", c.Request.Method),
					attribute.Int("http.status_code", http.StatusServiceUnavailable),
				),
			)
			defer span.End()

			spanCtx := span.SpanContext()
			traceID := ""
			if spanCtx.HasTraceID() {
				traceID = spanCtx.TraceID().String()
			}

			slog.Warn("Enrichment request rejected: warmup in progress",
				slog.String("path", c.Request.URL.Path),
				slog.String("method", c.Request.Method),
				slog.String("trace_id", traceID))

			span.SetStatus(codes.Error, "service unavailable during warmup")

			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":    "Enrichment warmup in progress",
				"code":     "SERVICE_WARMING_UP",
				"message":  "The thesaurus and embedding index are still loading. Please retry in 30 seconds.",
				"trace_id": traceID,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	configureLogging(*debug)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation, so rejected and served requests alike
	// correlate with the caller's distributed traces.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	shutdownTracing := setupTracing()

	svc := enrich.NewService()
	handlers := enrich.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("tessera-enrich"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	enrich.RegisterRoutesWithMiddleware(v1, handlers, WarmupGuardMiddleware())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Warmup runs in the background so the server binds immediately; the
	// guard middleware holds enrichment requests off until it finishes.
	go runWarmup(svc)

	printBanner(*port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Tessera enrichment server")
		if rt := svc.Runtime(); rt != nil {
			if err := rt.Close(); err != nil {
				slog.Warn("Failed to close enrichment runtime", slog.String("error", err.Error()))
			}
		}
		shutdownTracing()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Tessera enrichment server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// runWarmup loads the configuration and bootstraps the enrichment runtime,
// marking warmup complete whatever the outcome so the service degrades to
// explicit errors instead of eternal 503s.
func runWarmup(svc *enrich.Service) {
	// Panic recovery ensures MarkWarmupComplete is always called. Without
	// it, a panic in warmup (HTTP transport, cache open) would leave the
	// server permanently in "warming up" state.
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("Panic in warmup goroutine recovered",
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])))
			svc.SetWarmupError(fmt.Errorf("warmup panic: %v", r))
			enrich.MarkWarmupComplete()
		}
	}()

	started := time.Now()
	ctx := context.Background()

	slog.Info("Server starting, enrichment warmup in progress...")

	cfg, err := config.GetConfig(ctx)
	if err != nil {
		slog.Error("Configuration load failed, enrichment endpoints unavailable",
			slog.String("error", err.Error()))
		svc.SetWarmupError(err)
		enrich.RecordWarmup(time.Since(started), false)
		enrich.MarkWarmupComplete()
		return
	}

	rt, err := enrich.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("Warmup failed, enrichment endpoints unavailable",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(started)))
		svc.SetWarmupError(err)
		enrich.RecordWarmup(time.Since(started), false)
		enrich.MarkWarmupComplete()
		return
	}

	svc.SetRuntime(rt)
	enrich.RecordWarmup(time.Since(started), true)
	enrich.MarkWarmupComplete()

	stats := rt.Stats()
	slog.Info("Server ready to accept enrichment requests",
		slog.Int("concepts", stats.Concepts),
		slog.Int("index_vectors", stats.IndexVectors),
		slog.String("oracle_model", stats.OracleModel),
		slog.Duration("duration", time.Since(started)))
}

// configureLogging installs the process-wide slog handler: human-readable
// text on a terminal, JSON when output is redirected or piped.
func configureLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	fd := os.Stderr.Fd()
	var handler slog.Handler
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// setupTracing installs a stdout span exporter when ENRICH_TRACE_STDOUT is
// set. Without it the default no-op tracer provider stays in place and span
// creation costs nothing.
func setupTracing() func() {
	if os.Getenv("ENRICH_TRACE_STDOUT") == "" {
		return func() {}
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		slog.Warn("Stdout trace exporter unavailable, tracing disabled",
			slog.String("error", err.Error()))
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	slog.Info("Stdout trace exporter enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Warn("Trace provider shutdown failed", slog.String("error", err.Error()))
		}
	}
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                   TESSERA ENRICHMENT SERVER                       ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Concept matching for WW2 oral-history interview segments.        ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health and loaded-resource stats                          │  ║
║  │ curl http://localhost:%d/v1/enrich/health                 │  ║
║  │                                                             │  ║
║  │ # Match one segment                                         │  ║
║  │ curl -X POST http://localhost:%d/v1/enrich/segment \      │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"text": "Hij zat ondergedoken in Amsterdam."}'       │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── POST /v1/enrich/segment  (503 until warmup completes)        ║
║  ├── GET  /v1/enrich/health                                       ║
║  └── GET  /metrics                                                ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port)
}
