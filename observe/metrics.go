package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/streamops/rx"
)

// Metrics records stream metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordNotification counts one notification of the given kind.
	RecordNotification(ctx context.Context, meta StreamMeta, kind rx.Kind)

	// RecordFault counts one side-effect callback fault.
	RecordFault(ctx context.Context, meta StreamMeta, kind rx.Kind)

	// RecordSubscription records the end of a subscription, its duration and
	// the stream error if any.
	RecordSubscription(ctx context.Context, meta StreamMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	notifications metric.Int64Counter
	faults        metric.Int64Counter
	subscriptions metric.Int64Counter
	errors        metric.Int64Counter
	durationHist  metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	notifications, err := meter.Int64Counter(
		"stream.notifications.total",
		metric.WithDescription("Total number of stream notifications by kind"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	faults, err := meter.Int64Counter(
		"stream.faults.total",
		metric.WithDescription("Total number of side-effect callback faults"),
		metric.WithUnit("{fault}"),
	)
	if err != nil {
		return nil, err
	}

	subscriptions, err := meter.Int64Counter(
		"stream.subscriptions.total",
		metric.WithDescription("Total number of finished subscriptions"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"stream.errors.total",
		metric.WithDescription("Total number of subscriptions terminated by an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"stream.subscription.duration_ms",
		metric.WithDescription("Subscription duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		notifications: notifications,
		faults:        faults,
		subscriptions: subscriptions,
		errors:        errorCount,
		durationHist:  durationHist,
	}, nil
}

func kindOption(meta StreamMeta, kind rx.Kind) metric.MeasurementOption {
	attrs := append(meta.attributes(), attribute.String("stream.notification", kind.String()))
	return metric.WithAttributes(attrs...)
}

func (m *metricsImpl) RecordNotification(ctx context.Context, meta StreamMeta, kind rx.Kind) {
	m.notifications.Add(ctx, 1, kindOption(meta, kind))
}

func (m *metricsImpl) RecordFault(ctx context.Context, meta StreamMeta, kind rx.Kind) {
	m.faults.Add(ctx, 1, kindOption(meta, kind))
}

func (m *metricsImpl) RecordSubscription(ctx context.Context, meta StreamMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.attributes()...)

	m.subscriptions.Add(ctx, 1, opt)
	if err != nil {
		m.errors.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

type noopMetrics struct{}

func (m *noopMetrics) RecordNotification(ctx context.Context, meta StreamMeta, kind rx.Kind) {}

func (m *noopMetrics) RecordFault(ctx context.Context, meta StreamMeta, kind rx.Kind) {}

func (m *noopMetrics) RecordSubscription(ctx context.Context, meta StreamMeta, duration time.Duration, err error) {
}
