package observe

import (
	"errors"

	"github.com/jonwraymond/streamops/observe/exporters"
)

// Configuration errors.
var (
	// ErrMissingServiceName indicates Config.ServiceName is empty.
	ErrMissingServiceName = errors.New("observe: service name is required")

	// ErrInvalidSamplePct indicates Tracing.SamplePct is not in [0.0, 1.0].
	ErrInvalidSamplePct = errors.New("observe: sample percentage must be between 0.0 and 1.0")

	// ErrInvalidTracingExporter indicates an unknown tracing exporter name.
	ErrInvalidTracingExporter = errors.New("observe: unknown tracing exporter")

	// ErrInvalidMetricsExporter indicates an unknown metrics exporter name.
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("observe: unknown log level")
)

// Runtime errors.
var (
	// ErrNilTelemetry indicates a nil Telemetry was provided.
	ErrNilTelemetry = errors.New("observe: telemetry is nil")

	// ErrMissingStreamName indicates StreamMeta.Name is empty.
	ErrMissingStreamName = errors.New("observe: stream name is required")
)

// ErrEndpointNotConfigured indicates a required exporter endpoint environment
// variable is not set.
var ErrEndpointNotConfigured = exporters.ErrEndpointNotConfigured

// Validation constants.
const (
	// MinSamplePct is the minimum valid sampling percentage.
	MinSamplePct = 0.0
	// MaxSamplePct is the maximum valid sampling percentage.
	MaxSamplePct = 1.0
)

// ValidTracingExporters lists valid tracing exporter names.
var ValidTracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}

// ValidMetricsExporters lists valid metrics exporter names.
var ValidMetricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}

// ValidLogLevels lists valid log level names.
var ValidLogLevels = []string{"debug", "info", "warn", "error", ""}

// RedactedFields lists field keys that are automatically redacted in logs.
// Stream payloads and credentials must never reach log output.
var RedactedFields = []string{
	"value",
	"values",
	"password",
	"secret",
	"token",
	"api_key",
	"apiKey",
	"credential",
}
