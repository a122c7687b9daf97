package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Ramsey-B/quay/pkg/tracing/exporters"
)

// SetupConfig holds the settings for wiring a tracer provider.
type SetupConfig struct {
	ServiceName  string
	OTLPEndpoint string
	OTLPProtocol string
	Insecure     bool
}

// Setup builds an OTLP-backed tracer provider, registers it globally, and
// points the package tracer at it. The returned function flushes and shuts
// down the provider.
func Setup(ctx context.Context, config SetupConfig) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	if config.OTLPProtocol == "console" {
		// Local runs with no collector still get spans on every context.
		exporter = &exporters.ConsoleExporter{}
	} else {
		var err error
		exporter, err = exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: config.OTLPEndpoint,
			Protocol: config.OTLPProtocol,
			Insecure: config.Insecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetTracer(provider.Tracer(config.ServiceName))

	return provider.Shutdown, nil
}
