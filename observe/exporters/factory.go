// Package exporters builds OpenTelemetry exporters from exporter names.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrUnknownExporter indicates an exporter name with no factory.
	ErrUnknownExporter = errors.New("exporters: unknown exporter")

	// ErrEndpointNotConfigured indicates a required endpoint environment
	// variable is not set.
	ErrEndpointNotConfigured = errors.New("exporters: endpoint not configured")
)

// Option configures exporter construction.
type Option func(*options)

type options struct {
	writer     io.Writer
	registerer promclient.Registerer
}

// WithWriter sets the destination of the stdout exporters. Defaults to
// os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithRegisterer sets the Prometheus registerer used by the prometheus
// reader. Defaults to the client's default registerer.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func buildOptions(opts []Option) options {
	o := options{
		writer:     os.Stdout,
		registerer: promclient.DefaultRegisterer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// firstEnv returns the first non-empty value among keys, or an
// ErrEndpointNotConfigured error naming them.
func firstEnv(keys ...string) (string, error) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: set %v", ErrEndpointNotConfigured, keys)
}

// NewTracingExporter creates a span exporter for name.
// Supported exporters: stdout, otlp, jaeger, none.
//
// "none" and the empty name return an exporter that discards spans so the
// provider can always be built with a batcher.
func NewTracingExporter(ctx context.Context, name string, opts ...Option) (sdktrace.SpanExporter, error) {
	o := buildOptions(opts)

	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(o.writer))

	case "otlp":
		if _, err := firstEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)

	case "jaeger":
		// Jaeger ingests OTLP natively.
		endpoint, err := firstEnv("OTEL_EXPORTER_JAEGER_ENDPOINT")
		if err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))

	case "none", "":
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
}

// NewMetricsReader creates a metrics reader for name.
// Supported exporters: stdout, otlp, prometheus, none.
func NewMetricsReader(ctx context.Context, name string, opts ...Option) (sdkmetric.Reader, error) {
	o := buildOptions(opts)

	switch name {
	case "stdout":
		return periodic(stdoutmetric.New(stdoutmetric.WithWriter(o.writer)))

	case "otlp":
		if _, err := firstEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		return periodic(otlpmetricgrpc.New(ctx))

	case "prometheus":
		exp, err := prometheus.New(prometheus.WithRegisterer(o.registerer))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return exp, nil

	case "none", "":
		return periodic(stdoutmetric.New(stdoutmetric.WithWriter(io.Discard)))

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
}

func periodic(exp sdkmetric.Exporter, err error) (sdkmetric.Reader, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
