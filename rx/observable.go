package rx

// Observable is a source of notifications.
//
// Contract:
//   - Subscribe establishes a feed to observer and returns the handle that
//     tears it down. The handle is never nil.
//   - Each call to Subscribe is an independent subscription.
//   - Sources in this package deliver synchronously, before Subscribe returns.
type Observable[T any] interface {
	Subscribe(observer Observer[T]) Disposable
}

// SubscribeFunc implements Observable with a function.
type SubscribeFunc[T any] func(observer Observer[T]) Disposable

// Subscribe calls f. A nil handle returned by f is replaced with
// NopDisposable.
func (f SubscribeFunc[T]) Subscribe(observer Observer[T]) Disposable {
	if d := f(observer); d != nil {
		return d
	}
	return NopDisposable
}

// Create builds an Observable from a subscribe function.
//
//	ones := rx.Create(func(o rx.Observer[int]) rx.Disposable {
//	    o.OnNext(1)
//	    o.OnCompleted()
//	    return rx.NopDisposable
//	})
func Create[T any](subscribe func(observer Observer[T]) Disposable) Observable[T] {
	return SubscribeFunc[T](subscribe)
}

// FromSlice emits each of values in order and then completes.
func FromSlice[T any](values ...T) Observable[T] {
	return Create(func(o Observer[T]) Disposable {
		for _, v := range values {
			o.OnNext(v)
		}
		o.OnCompleted()
		return NopDisposable
	})
}

// Throw terminates with err without emitting values.
func Throw[T any](err error) Observable[T] {
	return Create(func(o Observer[T]) Disposable {
		o.OnError(err)
		return NopDisposable
	})
}

// Empty completes without emitting values.
func Empty[T any]() Observable[T] {
	return Create(func(o Observer[T]) Disposable {
		o.OnCompleted()
		return NopDisposable
	})
}

// StartWith emits values and then subscribes o to source. Combined with
// Throw it builds a source that emits before failing:
//
//	rx.StartWith(rx.Throw[int](err), 1, 2)
func StartWith[T any](source Observable[T], values ...T) Observable[T] {
	return Create(func(o Observer[T]) Disposable {
		for _, v := range values {
			o.OnNext(v)
		}
		return source.Subscribe(o)
	})
}
