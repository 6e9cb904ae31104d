package cmd

import (
	"context"

	"github.com/dukex/provtrack/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer exports spans over OTLP when enabled and records nothing otherwise.
// nolint:ireturn
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NewNoopTracer(), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
