package observe

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/streamops/rx"
	"github.com/jonwraymond/streamops/rx/rxtest"
)

type middlewareHarness struct {
	spans   *tracetest.SpanRecorder
	reader  *sdkmetric.ManualReader
	logs    *bytes.Buffer
	tracer  *tracerImpl
	mw      *Middleware
	metrics *metricsImpl
}

func newMiddlewareHarness(t *testing.T) *middlewareHarness {
	t.Helper()
	spans, tracer := newRecordingTracer()
	reader, metrics := newRecordingMetrics(t)
	logs := &bytes.Buffer{}

	return &middlewareHarness{
		spans:   spans,
		reader:  reader,
		logs:    logs,
		tracer:  tracer,
		metrics: metrics,
		mw:      NewMiddleware(tracer, metrics, NewLoggerWithWriter("debug", logs)),
	}
}

// TestMiddleware_CompletedPath verifies a completed stream records telemetry.
func TestMiddleware_CompletedPath(t *testing.T) {
	h := newMiddlewareHarness(t)
	meta := StreamMeta{Namespace: "billing", Name: "invoices"}

	rec := rxtest.NewRecorder[int]()
	Instrument(h.mw, rx.FromSlice(1, 2, 3), meta).Subscribe(rec)

	if got := rec.Values(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("expected values [1 2 3], got %v", got)
	}
	if rec.Terminals() != 1 {
		t.Errorf("expected 1 terminal notification, got %d", rec.Terminals())
	}

	spans := h.spans.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "stream.subscribe.billing.invoices" {
		t.Errorf("expected span name 'stream.subscribe.billing.invoices', got %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status().Code)
	}

	rm := collect(t, h.reader)
	counts := sumByAttr(t, rm, "stream.notifications.total", "stream.notification")
	if counts["next"] != 3 || counts["completed"] != 1 {
		t.Errorf("expected 3 next and 1 completed, got %v", counts)
	}
	if got := sumByAttr(t, rm, "stream.subscriptions.total", "stream.name")["invoices"]; got != 1 {
		t.Errorf("expected 1 subscription, got %d", got)
	}
	if !strings.Contains(h.logs.String(), `"msg":"stream completed"`) {
		t.Errorf("expected completion log, got %s", h.logs.String())
	}
}

// TestMiddleware_ErrorPath verifies a failed stream records error telemetry.
func TestMiddleware_ErrorPath(t *testing.T) {
	h := newMiddlewareHarness(t)
	streamErr := errors.New("upstream closed")

	rec := rxtest.NewRecorder[int]()
	Instrument(h.mw, rx.StartWith(rx.Throw[int](streamErr), 7), StreamMeta{Name: "feed"}).Subscribe(rec)

	if errs := rec.Errors(); len(errs) != 1 || !errors.Is(errs[0], streamErr) {
		t.Errorf("expected exactly the stream error, got %v", errs)
	}

	s := h.spans.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status().Code)
	}
	if v := attrMap(s.Attributes())["stream.error"]; !v.AsBool() {
		t.Error("expected stream.error=true")
	}

	rm := collect(t, h.reader)
	if got := sumByAttr(t, rm, "stream.errors.total", "stream.name")["feed"]; got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
	if got := sumByAttr(t, rm, "stream.notifications.total", "stream.notification")["error"]; got != 1 {
		t.Errorf("expected 1 error notification, got %d", got)
	}

	entries := decodeLines(t, h.logs)
	last := entries[len(entries)-1]
	if last["msg"] != "stream failed" || last["level"] != "error" || last["error"] != "upstream closed" {
		t.Errorf("unexpected final log entry: %v", last)
	}
}

// TestMiddleware_TerminalCallbacksDeliverOnce verifies registered terminal
// callbacks do not duplicate the terminal notification.
func TestMiddleware_TerminalCallbacksDeliverOnce(t *testing.T) {
	h := newMiddlewareHarness(t)

	var completed int
	rec := rxtest.NewRecorder[string]()
	InstrumentTap(h.mw, rx.FromSlice("a", "b"), StreamMeta{Name: "letters"}, rx.Callbacks[string]{
		OnCompleted: func() error {
			completed++
			return nil
		},
	}).Subscribe(rec)

	if completed != 1 {
		t.Errorf("expected onCompleted once, got %d", completed)
	}
	if got := rec.Kinds(); !slices.Equal(got, []rx.Kind{rx.KindNext, rx.KindNext, rx.KindCompleted}) {
		t.Errorf("unexpected notifications: %v", got)
	}
}

// TestMiddleware_CallbackFault verifies a faulting callback is recorded and
// terminates the subscription with the fault.
func TestMiddleware_CallbackFault(t *testing.T) {
	h := newMiddlewareHarness(t)
	auditErr := errors.New("audit write failed")

	var seen []int
	rec := rxtest.NewRecorder[int]()
	InstrumentTap(h.mw, rx.FromSlice(1, 2, 3), StreamMeta{Name: "audited"}, rx.Callbacks[int]{
		OnNext: func(v int) error {
			seen = append(seen, v)
			if v == 2 {
				return auditErr
			}
			return nil
		},
	}).Subscribe(rec)

	if !slices.Equal(seen, []int{1, 2}) {
		t.Errorf("expected callback to stop after the fault, saw %v", seen)
	}
	if got := rec.Values(); !slices.Equal(got, []int{1}) {
		t.Errorf("expected only the value before the fault, got %v", got)
	}
	if errs := rec.Errors(); len(errs) != 1 || !errors.Is(errs[0], auditErr) {
		t.Errorf("expected the fault as the stream error, got %v", errs)
	}
	if rec.Terminals() != 1 {
		t.Errorf("expected 1 terminal notification, got %d", rec.Terminals())
	}

	s := h.spans.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status().Code)
	}
	var faultEvents int
	for _, ev := range s.Events() {
		if attrMap(ev.Attributes)["stream.callback_fault"].AsBool() {
			faultEvents++
		}
	}
	if faultEvents != 1 {
		t.Errorf("expected 1 fault event, got %d", faultEvents)
	}

	if got := sumByAttr(t, collect(t, h.reader), "stream.faults.total", "stream.notification")["next"]; got != 1 {
		t.Errorf("expected 1 next fault, got %d", got)
	}
	if !strings.Contains(h.logs.String(), `"msg":"stream callback fault"`) {
		t.Errorf("expected fault log, got %s", h.logs.String())
	}
}

// TestMiddleware_CallbackPanic verifies a panicking callback is reported as a
// PanicError.
func TestMiddleware_CallbackPanic(t *testing.T) {
	h := newMiddlewareHarness(t)

	rec := rxtest.NewRecorder[int]()
	InstrumentTap(h.mw, rx.FromSlice(1), StreamMeta{Name: "panicky"}, rx.Callbacks[int]{
		OnNext: func(int) error { panic("boom") },
	}).Subscribe(rec)

	errs := rec.Errors()
	if len(errs) != 1 || !errors.Is(errs[0], rx.ErrCallbackPanic) {
		t.Fatalf("expected a callback panic error, got %v", errs)
	}
	var pe *rx.PanicError
	if !errors.As(errs[0], &pe) || pe.Kind != rx.KindNext {
		t.Errorf("expected PanicError for next, got %#v", errs[0])
	}
}

// TestMiddleware_DisposeEndsSpanOnce verifies disposal finishes an unterminated
// subscription exactly once.
func TestMiddleware_DisposeEndsSpanOnce(t *testing.T) {
	h := newMiddlewareHarness(t)

	var sourceDisposed int
	source := rx.Create(func(o rx.Observer[int]) rx.Disposable {
		o.OnNext(1)
		return rx.DisposableFunc(func() { sourceDisposed++ })
	})

	handle := Instrument(h.mw, source, StreamMeta{Name: "endless"}).Subscribe(rxtest.NewRecorder[int]())
	if n := len(h.spans.Ended()); n != 0 {
		t.Fatalf("expected open span before dispose, got %d ended", n)
	}

	handle.Dispose()
	if sourceDisposed != 1 {
		t.Errorf("expected source disposed once, got %d", sourceDisposed)
	}
	handle.Dispose()

	spans := h.spans.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if v := attrMap(spans[0].Attributes())["stream.disposed"]; !v.AsBool() {
		t.Error("expected stream.disposed=true")
	}
	if !strings.Contains(h.logs.String(), `"msg":"stream disposed"`) {
		t.Errorf("expected disposal log, got %s", h.logs.String())
	}
}

// TestMiddleware_DisposeAfterCompletion verifies disposal after termination
// does not end a second span.
func TestMiddleware_DisposeAfterCompletion(t *testing.T) {
	h := newMiddlewareHarness(t)

	handle := Instrument(h.mw, rx.FromSlice(1), StreamMeta{Name: "done"}).Subscribe(rxtest.NewRecorder[int]())
	handle.Dispose()

	spans := h.spans.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if _, ok := attrMap(spans[0].Attributes())["stream.disposed"]; ok {
		t.Error("expected no stream.disposed attribute on a completed stream")
	}
}

// TestMiddleware_SpanPerSubscription verifies each subscription gets its own span.
func TestMiddleware_SpanPerSubscription(t *testing.T) {
	h := newMiddlewareHarness(t)
	stream := Instrument(h.mw, rx.FromSlice(1, 2), StreamMeta{Name: "shared"})

	stream.Subscribe(rxtest.NewRecorder[int]())
	stream.Subscribe(rxtest.NewRecorder[int]())

	spans := h.spans.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].SpanContext().SpanID() == spans[1].SpanContext().SpanID() {
		t.Error("expected distinct spans")
	}
}

// TestMiddleware_PropagatesContext verifies WithContext parents the span.
func TestMiddleware_PropagatesContext(t *testing.T) {
	h := newMiddlewareHarness(t)

	parentCtx, parent := h.tracer.tracer.Start(context.Background(), "parent")
	Instrument(h.mw, rx.Empty[int](), StreamMeta{Name: "child"}, WithContext(parentCtx)).
		Subscribe(rxtest.NewRecorder[int]())
	parent.End()

	var child sdktrace.ReadOnlySpan
	for _, s := range h.spans.Ended() {
		if s.Name() == "stream.subscribe.child" {
			child = s
		}
	}
	if child == nil {
		t.Fatal("child span not found")
	}
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("expected subscription span to be a child of the context span")
	}
}

// TestMiddleware_NotificationLoggingOmitsValues verifies notification logs
// carry the kind but never the value.
func TestMiddleware_NotificationLoggingOmitsValues(t *testing.T) {
	h := newMiddlewareHarness(t)

	Instrument(h.mw, rx.FromSlice("secret-payload"), StreamMeta{Name: "private"}, WithNotificationLogging()).
		Subscribe(rxtest.NewRecorder[string]())

	if strings.Contains(h.logs.String(), "secret-payload") {
		t.Fatal("stream value leaked into logs")
	}

	var kinds []any
	for _, entry := range decodeLines(t, h.logs) {
		if entry["msg"] == "stream notification" {
			kinds = append(kinds, entry["kind"])
		}
	}
	if !slices.Equal(kinds, []any{"next", "completed"}) {
		t.Errorf("expected next and completed notification logs, got %v", kinds)
	}
}

// TestMiddleware_ConcurrentSubscriptions verifies concurrent subscriptions
// are recorded independently.
func TestMiddleware_ConcurrentSubscriptions(t *testing.T) {
	h := newMiddlewareHarness(t)
	stream := Instrument(h.mw, rx.FromSlice(1, 2, 3), StreamMeta{Name: "fanout"})

	const subscribers = 16
	var g errgroup.Group
	for range subscribers {
		g.Go(func() error {
			rec := rxtest.NewRecorder[int]()
			stream.Subscribe(rec)
			if rec.Terminals() != 1 {
				return errors.New("expected a single terminal notification")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := len(h.spans.Ended()); n != subscribers {
		t.Errorf("expected %d spans, got %d", subscribers, n)
	}
	if got := sumByAttr(t, collect(t, h.reader), "stream.notifications.total", "stream.notification")["next"]; got != 3*subscribers {
		t.Errorf("expected %d next notifications, got %d", 3*subscribers, got)
	}
}

// TestMiddleware_InvalidMetaFailsSubscription verifies an unnamed stream is
// rejected without subscribing to the source.
func TestMiddleware_InvalidMetaFailsSubscription(t *testing.T) {
	h := newMiddlewareHarness(t)

	subscribed := false
	source := rx.Create(func(o rx.Observer[int]) rx.Disposable {
		subscribed = true
		o.OnCompleted()
		return nil
	})

	rec := rxtest.NewRecorder[int]()
	Instrument(h.mw, source, StreamMeta{Namespace: "billing"}).Subscribe(rec)

	if subscribed {
		t.Error("expected source not to be subscribed")
	}
	if errs := rec.Errors(); len(errs) != 1 || !errors.Is(errs[0], ErrMissingStreamName) {
		t.Errorf("expected ErrMissingStreamName, got %v", errs)
	}
	if n := len(h.spans.Ended()); n != 0 {
		t.Errorf("expected no spans, got %d", n)
	}
}

// TestMiddlewareFromTelemetry verifies construction from Telemetry.
func TestMiddlewareFromTelemetry(t *testing.T) {
	if _, err := MiddlewareFromTelemetry(nil); !errors.Is(err, ErrNilTelemetry) {
		t.Fatalf("expected ErrNilTelemetry, got: %v", err)
	}

	tel, err := NewTelemetry(context.Background(), Config{ServiceName: "svc"})
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	mw, err := MiddlewareFromTelemetry(tel)
	if err != nil {
		t.Fatalf("MiddlewareFromTelemetry failed: %v", err)
	}

	rec := rxtest.NewRecorder[int]()
	Instrument(mw, rx.FromSlice(4, 5), StreamMeta{Name: "noop"}).Subscribe(rec)
	if got := rec.Values(); !slices.Equal(got, []int{4, 5}) {
		t.Errorf("expected values [4 5], got %v", got)
	}
}
