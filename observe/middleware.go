package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/streamops/rx"
)

// Middleware instruments stream subscriptions with tracing, metrics and
// logging.
//
// Contract:
//   - Concurrency: a Middleware may instrument any number of streams and
//     subscriptions concurrently.
//   - Context: spans are children of the context given with WithContext.
//   - Errors: telemetry failures never alter the instrumented stream.
//   - Ownership: values are forwarded without modification and never logged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware from the given components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// MiddlewareFromTelemetry creates a Middleware from the providers of tel.
func MiddlewareFromTelemetry(tel Telemetry) (*Middleware, error) {
	if tel == nil {
		return nil, ErrNilTelemetry
	}

	metrics, err := newMetrics(tel.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(newTracer(tel.Tracer()), metrics, tel.Logger()), nil
}

// InstrumentOption configures Instrument and InstrumentTap.
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	ctx              context.Context
	logNotifications bool
}

// WithContext sets the parent context of subscription spans. Defaults to
// context.Background().
func WithContext(ctx context.Context) InstrumentOption {
	return func(c *instrumentConfig) {
		c.ctx = ctx
	}
}

// WithNotificationLogging logs every notification at debug level. Values are
// not logged, only their kind.
func WithNotificationLogging() InstrumentOption {
	return func(c *instrumentConfig) {
		c.logNotifications = true
	}
}

// Instrument returns source with telemetry recorded for every subscription.
// Subscribers see at most one terminal notification.
func Instrument[T any](m *Middleware, source rx.Observable[T], meta StreamMeta, opts ...InstrumentOption) rx.Observable[T] {
	return InstrumentTap(m, source, meta, rx.Callbacks[T]{}, opts...)
}

// InstrumentTap is Instrument with side-effect callbacks run through a strict
// rx.Tap. Callback faults are recorded on the span, counted, logged at warn
// level and then delivered to the subscriber as the stream error.
//
// If meta does not validate, the returned Observable fails every
// subscription with the validation error without subscribing to source.
func InstrumentTap[T any](m *Middleware, source rx.Observable[T], meta StreamMeta, callbacks rx.Callbacks[T], opts ...InstrumentOption) rx.Observable[T] {
	if err := meta.Validate(); err != nil {
		return rx.Throw[T](err)
	}

	cfg := instrumentConfig{ctx: context.Background()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return rx.Create(func(downstream rx.Observer[T]) rx.Disposable {
		sub := m.start(cfg, meta)

		effects := rx.Tap(source, callbacks,
			rx.WithStrictTermination(),
			rx.WithFaultHandler(sub.fault),
		)
		recorded := rx.Tap(effects, rx.Callbacks[T]{
			OnNext: func(T) error {
				sub.notify(rx.KindNext)
				return nil
			},
			OnError: func(err error) error {
				sub.notify(rx.KindError)
				sub.finish(err, false)
				return nil
			},
			OnCompleted: func() error {
				sub.notify(rx.KindCompleted)
				sub.finish(nil, false)
				return nil
			},
		}, rx.WithStrictTermination())

		handle := recorded.Subscribe(downstream)
		return rx.DisposableFunc(func() {
			handle.Dispose()
			sub.finish(nil, true)
		})
	})
}

// subscription holds the telemetry state of one instrumented subscription.
type subscription struct {
	m       *Middleware
	cfg     instrumentConfig
	meta    StreamMeta
	ctx     context.Context
	span    trace.Span
	logger  Logger
	started time.Time
	once    sync.Once
}

func (m *Middleware) start(cfg instrumentConfig, meta StreamMeta) *subscription {
	ctx, span := m.tracer.StartSpan(cfg.ctx, meta)
	s := &subscription{
		m:       m,
		cfg:     cfg,
		meta:    meta,
		ctx:     ctx,
		span:    span,
		logger:  m.logger.WithStream(meta),
		started: time.Now(),
	}
	s.logger.Debug(ctx, "stream subscribed")
	return s
}

func (s *subscription) notify(kind rx.Kind) {
	s.m.metrics.RecordNotification(s.ctx, s.meta, kind)
	if s.cfg.logNotifications {
		s.logger.Debug(s.ctx, "stream notification", Field{Key: "kind", Value: kind.String()})
	}
}

func (s *subscription) fault(kind rx.Kind, fault error) {
	s.m.tracer.RecordFault(s.span, kind, fault)
	s.m.metrics.RecordFault(s.ctx, s.meta, kind)
	s.logger.Warn(s.ctx, "stream callback fault",
		Field{Key: "kind", Value: kind.String()},
		Field{Key: "error", Value: fault.Error()},
	)
}

// finish ends the span once, on the first terminal notification or on
// disposal, whichever comes first.
func (s *subscription) finish(err error, disposed bool) {
	s.once.Do(func() {
		duration := time.Since(s.started)
		if disposed {
			s.span.SetAttributes(attribute.Bool("stream.disposed", true))
		}
		s.m.tracer.EndSpan(s.span, err)
		s.m.metrics.RecordSubscription(s.ctx, s.meta, duration, err)

		fields := []Field{{Key: "duration_ms", Value: float64(duration.Milliseconds())}}
		switch {
		case err != nil:
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			s.logger.Error(s.ctx, "stream failed", fields...)
		case disposed:
			s.logger.Info(s.ctx, "stream disposed", fields...)
		default:
			s.logger.Info(s.ctx, "stream completed", fields...)
		}
	})
}
