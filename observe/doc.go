// Package observe instruments rx streams with traces, metrics and structured
// logs.
//
// It is built on the rx Tap operator: instrumentation observes every
// notification of a subscription without changing what reaches the
// subscriber. Each subscription gets one span, notifications are counted by
// kind, and the terminal notification ends the span, records the subscription
// duration and emits a log line.
//
// # Setup
//
//	tel, err := observe.NewTelemetry(ctx, observe.Config{
//	    ServiceName: "ingest",
//	    Tracing:     observe.TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 0.1},
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	mw, err := observe.MiddlewareFromTelemetry(tel)
//	if err != nil {
//	    return err
//	}
//
// # Instrumenting a stream
//
//	events := observe.Instrument(mw, source, observe.StreamMeta{
//	    Namespace: "billing",
//	    Name:      "invoices",
//	})
//	events.Subscribe(handler)
//
// InstrumentTap additionally runs user side effects; their faults are
// recorded on the span, counted and logged before being delivered to the
// subscriber as errors.
//
// Instrumented streams always use strict termination: the subscriber sees at
// most one terminal notification.
package observe
