// Package telemetry wires an OpenTelemetry TracerProvider for the spans the
// dispatcher and resilient executor emit around delivery and failover
// attempts. No exporter is configured here: the provider is wired so a
// deployment can attach one (OTLP, stdout, ...) without touching call
// sites, matching how the rest of the system keeps transport concerns out
// of domain code.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/atsv3/resilience-core"

// NewTracerProvider builds a TracerProvider and installs it as the global
// provider so otel.Tracer(TracerName) resolves to it anywhere in the
// process.
func NewTracerProvider() *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the package-wide tracer used for dispatch/executor spans.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Shutdown flushes and releases the TracerProvider's resources.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
