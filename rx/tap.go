package rx

import (
	"errors"
	"runtime/debug"
)

// NextFunc is a side effect run for each value. A non-nil error is a fault.
type NextFunc[T any] func(value T) error

// ErrorFunc is a side effect run when the source fails. A non-nil error is
// a fault.
type ErrorFunc func(err error) error

// CompletedFunc is a side effect run when the source completes. A non-nil
// error is a fault.
type CompletedFunc func() error

// Callbacks is the side-effect set of a Tap. A nil field registers no side
// effect for that channel.
type Callbacks[T any] struct {
	OnNext      NextFunc[T]
	OnError     ErrorFunc
	OnCompleted CompletedFunc
}

// TapOption configures a Tap.
type TapOption func(*tapConfig)

type tapConfig struct {
	strict  bool
	onFault func(kind Kind, fault error)
}

// WithStrictTermination makes a Tap forward at most one terminal notification
// per subscription.
//
// A value whose OnNext callback faulted is not forwarded; the fault becomes
// the terminal error. A fault in the OnError callback is joined with the
// source error. Notifications arriving after the terminal one are ignored.
func WithStrictTermination() TapOption {
	return func(c *tapConfig) {
		c.strict = true
	}
}

// WithFaultHandler registers fn to observe callback faults before they are
// forwarded downstream. fn runs on the notifying goroutine and must not
// panic.
func WithFaultHandler(fn func(kind Kind, fault error)) TapOption {
	return func(c *tapConfig) {
		c.onFault = fn
	}
}

// Tap returns an Observable that runs callbacks for every notification of
// source and forwards the notifications to its subscribers.
//
// The returned Observable holds no per-subscription state: each Subscribe
// subscribes source with a fresh intermediary observer and returns the
// handle produced by source unchanged. callbacks is shared read-only by all
// subscriptions.
//
// A callback fault (returned error or recovered panic) is delivered to the
// downstream OnError; it never propagates out of Subscribe. Without
// WithStrictTermination the forwarding rules are:
//
//   - value: OnNext callback, its fault if any, then the value.
//   - error: OnError callback, then either its fault or the source error,
//     then the source error again. With no OnError callback the source
//     error is forwarded once.
//   - completion: OnCompleted callback, then either its fault or
//     completion, then completion again. With no OnCompleted callback
//     completion is forwarded once.
//
// When an OnError or OnCompleted callback is registered the downstream
// observer therefore sees two terminal notifications.
func Tap[T any](source Observable[T], callbacks Callbacks[T], opts ...TapOption) Observable[T] {
	var cfg tapConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &tapObservable[T]{
		source:    source,
		callbacks: callbacks,
		cfg:       cfg,
	}
}

// TapFuncs is Tap with positional callbacks; any of them may be nil.
func TapFuncs[T any](source Observable[T], onNext NextFunc[T], onError ErrorFunc, onCompleted CompletedFunc, opts ...TapOption) Observable[T] {
	return Tap(source, Callbacks[T]{
		OnNext:      onNext,
		OnError:     onError,
		OnCompleted: onCompleted,
	}, opts...)
}

// TapObserver is Tap with the three methods of observer as callbacks. A
// panic in one of them is a fault. A nil observer registers no callbacks.
func TapObserver[T any](source Observable[T], observer Observer[T], opts ...TapOption) Observable[T] {
	if observer == nil {
		return Tap(source, Callbacks[T]{}, opts...)
	}
	return Tap(source, Callbacks[T]{
		OnNext: func(value T) error {
			observer.OnNext(value)
			return nil
		},
		OnError: func(err error) error {
			observer.OnError(err)
			return nil
		},
		OnCompleted: func() error {
			observer.OnCompleted()
			return nil
		},
	}, opts...)
}

type tapObservable[T any] struct {
	source    Observable[T]
	callbacks Callbacks[T]
	cfg       tapConfig
}

func (t *tapObservable[T]) Subscribe(downstream Observer[T]) Disposable {
	return t.source.Subscribe(&tapObserver[T]{tap: t, downstream: downstream})
}

// tapObserver is the intermediary between source and downstream. One is
// created per subscription.
type tapObserver[T any] struct {
	tap        *tapObservable[T]
	downstream Observer[T]
	// stopped is only set in strict mode.
	stopped bool
}

func (o *tapObserver[T]) OnNext(value T) {
	if o.stopped {
		return
	}
	if cb := o.tap.callbacks.OnNext; cb != nil {
		if fault := invoke(KindNext, func() error { return cb(value) }); fault != nil {
			o.reportFault(KindNext, fault)
			o.stopped = o.tap.cfg.strict
			o.downstream.OnError(fault)
			if o.stopped {
				return
			}
		}
	}
	o.downstream.OnNext(value)
}

func (o *tapObserver[T]) OnError(err error) {
	if o.stopped {
		return
	}
	o.stopped = o.tap.cfg.strict

	cb := o.tap.callbacks.OnError
	if cb == nil {
		o.downstream.OnError(err)
		return
	}
	fault := invoke(KindError, func() error { return cb(err) })
	if fault != nil {
		o.reportFault(KindError, fault)
	}
	if o.tap.cfg.strict {
		if fault != nil {
			err = errors.Join(fault, err)
		}
		o.downstream.OnError(err)
		return
	}
	if fault != nil {
		o.downstream.OnError(fault)
	} else {
		o.downstream.OnError(err)
	}
	o.downstream.OnError(err)
}

func (o *tapObserver[T]) OnCompleted() {
	if o.stopped {
		return
	}
	o.stopped = o.tap.cfg.strict

	cb := o.tap.callbacks.OnCompleted
	if cb == nil {
		o.downstream.OnCompleted()
		return
	}
	fault := invoke(KindCompleted, cb)
	if fault != nil {
		o.reportFault(KindCompleted, fault)
		o.downstream.OnError(fault)
		if o.tap.cfg.strict {
			return
		}
	} else if !o.tap.cfg.strict {
		o.downstream.OnCompleted()
	}
	o.downstream.OnCompleted()
}

func (o *tapObserver[T]) reportFault(kind Kind, fault error) {
	if fn := o.tap.cfg.onFault; fn != nil {
		fn(kind, fault)
	}
}

// invoke runs fn and converts a panic into a *PanicError.
func invoke(kind Kind, fn func() error) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = &PanicError{Kind: kind, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
