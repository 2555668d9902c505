package rx

import (
	"errors"
	"fmt"
)

// ErrCallbackPanic is matched by every PanicError.
var ErrCallbackPanic = errors.New("rx: callback panicked")

// PanicError is the fault delivered downstream when a Tap callback panics.
type PanicError struct {
	// Kind is the channel whose callback panicked.
	Kind Kind

	// Value is the value passed to panic.
	Value any

	// Stack is the goroutine stack captured at recovery.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rx: %s callback panicked: %v", e.Kind, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Is reports whether target is ErrCallbackPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrCallbackPanic
}
