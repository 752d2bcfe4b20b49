package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName identifies spans emitted by this process.
const ServiceName = "perp-prediction"

// InitTracing installs a global tracer provider. exporter is "otlp", "stdout" or empty (disabled).
// The returned shutdown func flushes pending spans.
func InitTracing(ctx context.Context, exporter string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var spanExporter sdktrace.SpanExporter
	switch exporter {
	case "":
		return noop, nil
	case "otlp":
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return noop, fmt.Errorf("otlp exporter: %w", err)
		}
		spanExporter = exp
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return noop, fmt.Errorf("stdout exporter: %w", err)
		}
		spanExporter = exp
	default:
		return noop, fmt.Errorf("unknown OTEL_EXPORTER %q", exporter)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
	))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	Info("telemetry.tracing.enabled", map[string]any{"exporter": exporter})
	return tp.Shutdown, nil
}
