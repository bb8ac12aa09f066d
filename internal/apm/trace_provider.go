// Package apm sets up OpenTelemetry tracing.
package apm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/satsend/internal/logger"
)

// Exporter names a span exporter.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterZipkin   Exporter = "zipkin"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterOTLPHTTP Exporter = "otlp-http"
)

// TraceProvider is a configured tracer provider.
type TraceProvider interface {
	Stop() error
}

// Config selects and configures the exporter.
type Config struct {
	ServiceName string
	Exporter    Exporter
	Endpoint    string
	Headers     map[string]string
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type emptyProvider struct{}

func (emptyProvider) Stop() error { return nil }

// NewEmptyTraceProvider leaves the global no-op provider in place.
func NewEmptyTraceProvider() TraceProvider {
	return emptyProvider{}
}

// NewTraceProvider builds the exporter named in cfg and installs the
// provider and propagators globally.
func NewTraceProvider(ctx context.Context, cfg Config, log logger.LoggerInterface) (TraceProvider, error) {
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return NewEmptyTraceProvider(), nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("otel.exporter", string(cfg.Exporter)),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	// Set global trace provider
	otel.SetTracerProvider(tp)

	// Set trace propagator
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(ctx, "tracing enabled", "exporter", cfg.Exporter, "endpoint", cfg.Endpoint)

	return &traceProvider{tp}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterZipkin:
		return zipkin.New(cfg.Endpoint)
	case ExporterOTLPGRPC:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(cfg.Endpoint),
			otlptracegrpc.WithHeaders(cfg.Headers),
		)
	case ExporterOTLPHTTP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.Endpoint),
			otlptracehttp.WithHeaders(cfg.Headers),
		)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
	defer cancel()

	return o.tp.Shutdown(ctx)
}

// ParseHeaders parses "k1=v1,k2=v2" as used by OTEL_EXPORTER_OTLP_HEADERS.
func ParseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return headers, nil
	}

	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		headers[k] = strings.TrimSpace(v)
	}
	return headers, nil
}

// TraceID returns the trace id of the span in ctx, or "" when there is none.
// It matches logger.TraceIDFn.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
