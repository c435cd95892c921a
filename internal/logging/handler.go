// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

// Package logging sets up the structured logger for the CivGrid server.
// Every record carries the service name and version; when a request
// context carries an OpenTelemetry span, its IDs are attached too so
// host-side traces line up with our log lines.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Service is the service name stamped on every log record.
const Service = "civgrid"

// traceHandler decorates a slog.Handler with service identity and trace
// correlation attributes.
type traceHandler struct {
	handler slog.Handler
	version string
}

// Handle stamps the record and forwards it.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", Service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled reports whether the level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{handler: h.handler.WithAttrs(attrs), version: h.version}
}

// WithGroup returns a new handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{handler: h.handler.WithGroup(name), version: h.version}
}

// Setup creates a configured slog.Logger.
// format is "json" or "text"; anything else falls back to JSON.
// A nil writer means os.Stderr.
func Setup(version, format string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if format == "text" {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&traceHandler{handler: base, version: version})
}

// SetDefault installs a configured logger as the process default.
func SetDefault(version, format string, level slog.Level) {
	slog.SetDefault(Setup(version, format, level, nil))
}
