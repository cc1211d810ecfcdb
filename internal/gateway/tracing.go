package gateway

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// configureTracing installs an OTLP-gRPC tracer provider when
// OTEL_EXPORTER_OTLP_ENDPOINT is set in the environment, otherwise leaves
// the global no-op provider in place. It returns a shutdown func to flush
// and close the exporter on gateway stop; the func is always safe to call.
func configureTracing(ctx context.Context, logger *slog.Logger) (shutdown func(context.Context) error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }
	}

	client := otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		logger.Warn("otlp exporter init failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(provider)
	logger.Info("otlp tracing enabled", "endpoint", endpoint)

	return provider.Shutdown
}
