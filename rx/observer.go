package rx

// Observer receives the notifications of a stream.
//
// Contract:
//   - Concurrency: an Observable calls the methods of one Observer
//     sequentially, never concurrently.
//   - Ordering: no notification follows OnError or OnCompleted under correct
//     usage. Observers downstream of a literal Tap must tolerate a repeated
//     terminal notification.
type Observer[T any] interface {
	// OnNext receives the next value of the stream.
	OnNext(value T)

	// OnError receives the error that terminated the stream.
	OnError(err error)

	// OnCompleted signals graceful termination of the stream.
	OnCompleted()
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are no-ops.
type ObserverFuncs[T any] struct {
	Next      func(value T)
	Error     func(err error)
	Completed func()
}

// OnNext calls Next if set.
func (o ObserverFuncs[T]) OnNext(value T) {
	if o.Next != nil {
		o.Next(value)
	}
}

// OnError calls Error if set.
func (o ObserverFuncs[T]) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// OnCompleted calls Completed if set.
func (o ObserverFuncs[T]) OnCompleted() {
	if o.Completed != nil {
		o.Completed()
	}
}

var _ Observer[any] = ObserverFuncs[any]{}

// Disposable releases the resources held by a subscription.
type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a function to a Disposable. A nil DisposableFunc is a
// no-op.
type DisposableFunc func()

// Dispose calls f.
func (f DisposableFunc) Dispose() {
	if f != nil {
		f()
	}
}

// NopDisposable is returned by subscriptions that hold no resources.
var NopDisposable Disposable = DisposableFunc(nil)
