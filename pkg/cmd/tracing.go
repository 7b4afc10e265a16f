package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/flows/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer exports spans over OTLP when enabled, otherwise it returns a no-op tracer.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, logger *slog.Logger, enabled bool, serviceName string) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, nil, err
	}

	logger.InfoContext(ctx, "Tracing enabled", "service", serviceName)

	return tracer, shutdown, nil
}
