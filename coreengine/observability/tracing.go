package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jeeves-cluster-organization/selene/kernel"

// InitTracer initializes OpenTelemetry tracing with an OTLP exporter.
// Returns a shutdown function that must be called on service termination.
func InitTracer(serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("failed to create trace exporter: %w", errors.New("endpoint is required"))
	}
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// StartTurnSpan starts the span of one capability turn. Without InitTracer
// the global no-op provider is used.
func StartTurnSpan(ctx context.Context, domain, correlationID string, turnID uint32) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "selene.turn."+domain,
		oteltrace.WithAttributes(
			attribute.String("selene.domain", domain),
			attribute.String("selene.correlation_id", correlationID),
			attribute.Int64("selene.turn_id", int64(turnID)),
		),
	)
}

// EndTurnSpan annotates the span with the outcome and ends it.
func EndTurnSpan(span oteltrace.Span, outcome, reasonCode string, err error) {
	span.SetAttributes(attribute.String("selene.outcome", outcome))
	if reasonCode != "" {
		span.SetAttributes(attribute.String("selene.reason_code", reasonCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
