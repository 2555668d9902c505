package rx

import "fmt"

// Kind identifies the channel of a notification.
type Kind uint8

const (
	// KindNext carries a value.
	KindNext Kind = iota
	// KindError terminates the stream with an error.
	KindError
	// KindCompleted terminates the stream gracefully.
	KindCompleted
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNext:
		return "next"
	case KindError:
		return "error"
	case KindCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no notification may follow one of this kind.
func (k Kind) IsTerminal() bool {
	return k == KindError || k == KindCompleted
}

// Notification is one message of the three-channel protocol.
type Notification[T any] struct {
	kind  Kind
	value T
	err   error
}

// Next returns a value notification.
func Next[T any](value T) Notification[T] {
	return Notification[T]{kind: KindNext, value: value}
}

// Error returns an error notification.
func Error[T any](err error) Notification[T] {
	return Notification[T]{kind: KindError, err: err}
}

// Completed returns a completion notification.
func Completed[T any]() Notification[T] {
	return Notification[T]{kind: KindCompleted}
}

// Kind returns the channel of n.
func (n Notification[T]) Kind() Kind {
	return n.kind
}

// Value returns the carried value; zero unless Kind is KindNext.
func (n Notification[T]) Value() T {
	return n.value
}

// Err returns the carried error; nil unless Kind is KindError.
func (n Notification[T]) Err() error {
	return n.err
}

// Accept delivers n to the matching method of o.
func (n Notification[T]) Accept(o Observer[T]) {
	switch n.kind {
	case KindNext:
		o.OnNext(n.value)
	case KindError:
		o.OnError(n.err)
	case KindCompleted:
		o.OnCompleted()
	}
}

func (n Notification[T]) String() string {
	switch n.kind {
	case KindNext:
		return fmt.Sprintf("next(%v)", n.value)
	case KindError:
		return fmt.Sprintf("error(%v)", n.err)
	default:
		return n.kind.String()
	}
}
