// Package rxtest provides test helpers for rx streams.
package rxtest

import (
	"sync"

	"github.com/jonwraymond/streamops/rx"
)

// Recorder is an rx.Observer that records every notification it receives.
//
// Recorder is safe for concurrent use.
type Recorder[T any] struct {
	notifications []rx.Notification[T]
	mu            sync.Mutex
}

// NewRecorder constructs a Recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// OnNext records a value notification.
func (r *Recorder[T]) OnNext(value T) {
	r.record(rx.Next(value))
}

// OnError records an error notification.
func (r *Recorder[T]) OnError(err error) {
	r.record(rx.Error[T](err))
}

// OnCompleted records a completion notification.
func (r *Recorder[T]) OnCompleted() {
	r.record(rx.Completed[T]())
}

func (r *Recorder[T]) record(n rx.Notification[T]) {
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	r.mu.Unlock()
}

// Notifications returns a snapshot copy of recorded notifications.
func (r *Recorder[T]) Notifications() []rx.Notification[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]rx.Notification[T], len(r.notifications))
	copy(cp, r.notifications)
	return cp
}

// Values returns the recorded values in order.
func (r *Recorder[T]) Values() []T {
	ns := r.Notifications()
	out := make([]T, 0, len(ns))
	for _, n := range ns {
		if n.Kind() == rx.KindNext {
			out = append(out, n.Value())
		}
	}
	return out
}

// Errors returns the recorded errors in order.
func (r *Recorder[T]) Errors() []error {
	var out []error
	for _, n := range r.Notifications() {
		if n.Kind() == rx.KindError {
			out = append(out, n.Err())
		}
	}
	return out
}

// Kinds returns the kind of each recorded notification in order.
func (r *Recorder[T]) Kinds() []rx.Kind {
	ns := r.Notifications()
	out := make([]rx.Kind, len(ns))
	for i, n := range ns {
		out[i] = n.Kind()
	}
	return out
}

// Terminals returns how many error and completion notifications were
// recorded.
func (r *Recorder[T]) Terminals() int {
	count := 0
	for _, n := range r.Notifications() {
		if n.Kind().IsTerminal() {
			count++
		}
	}
	return count
}

// Reset clears the recorder.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.notifications = nil
	r.mu.Unlock()
}

var _ rx.Observer[any] = (*Recorder[any])(nil)
