package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/streamops/rx"
)

// StreamMeta identifies an instrumented stream in telemetry.
type StreamMeta struct {
	ID        string   // Fully qualified stream ID (namespace.name or just name)
	Namespace string   // Stream namespace (may be empty)
	Name      string   // Stream name (required)
	Version   string   // Stream version (optional)
	Tags      []string // Free-form tags (optional)
}

// Validate reports ErrMissingStreamName when Name is empty.
func (m StreamMeta) Validate() error {
	if m.Name == "" {
		return ErrMissingStreamName
	}
	return nil
}

// SpanName returns the deterministic span name for a subscription.
// Format: stream.subscribe.<namespace>.<name> or stream.subscribe.<name>
func (m StreamMeta) SpanName() string {
	if m.Namespace != "" {
		return "stream.subscribe." + m.Namespace + "." + m.Name
	}
	return "stream.subscribe." + m.Name
}

// StreamID returns ID when set, otherwise namespace.name or name.
func (m StreamMeta) StreamID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Namespace != "" {
		return m.Namespace + "." + m.Name
	}
	return m.Name
}

// attributes returns the identifying attributes shared by spans and metrics.
func (m StreamMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("stream.id", m.StreamID()),
		attribute.String("stream.name", m.Name),
	}
	if m.Namespace != "" {
		attrs = append(attrs, attribute.String("stream.namespace", m.Namespace))
	}
	return attrs
}

// Tracer manages the span of a stream subscription.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan returns a context carrying the new span.
// - Errors: RecordFault and EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts the span of one subscription.
	StartSpan(ctx context.Context, meta StreamMeta) (context.Context, trace.Span)

	// RecordFault records a side-effect callback fault on the span.
	RecordFault(span trace.Span, kind rx.Kind, fault error)

	// EndSpan ends the span, recording err as the stream error if non-nil.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts an internal span with the stream metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta StreamMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("stream.error", false))
	if meta.Version != "" {
		attrs = append(attrs, attribute.String("stream.version", meta.Version))
	}
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("stream.tags", meta.Tags))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// RecordFault adds an exception event tagged with the notification kind.
func (t *tracerImpl) RecordFault(span trace.Span, kind rx.Kind, fault error) {
	span.RecordError(fault, trace.WithAttributes(
		attribute.String("stream.notification", kind.String()),
		attribute.Bool("stream.callback_fault", true),
	))
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("stream.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta StreamMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) RecordFault(span trace.Span, kind rx.Kind, fault error) {}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
