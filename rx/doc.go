// Package rx provides a minimal push-based stream protocol and the Tap
// operator built on it.
//
// The protocol has three notifications: a value (OnNext), a failure (OnError)
// and a graceful end (OnCompleted). An Observable pushes notifications to an
// Observer once subscribed; at most one terminal notification (error or
// completion) is expected per subscription.
//
// # Tap
//
// Tap interposes side-effect callbacks on a stream without changing what is
// forwarded downstream. It is the place where callback faults are turned into
// stream errors: a callback that returns an error or panics never unwinds the
// Subscribe call stack, the fault is delivered to the downstream observer's
// OnError instead.
//
//	logged := rx.Tap(source, rx.Callbacks[int]{
//	    OnNext: func(v int) error {
//	        log.Printf("value %d", v)
//	        return nil
//	    },
//	})
//	logged.Subscribe(rx.ObserverFuncs[int]{Next: handle})
//
// An existing Observer can be adopted as the callback set with TapObserver.
//
// # Termination
//
// By default Tap keeps the historical forwarding rules: a value is forwarded
// even when its OnNext callback faulted, and a registered OnError or
// OnCompleted callback causes the terminal notification to be forwarded a
// second time. Downstream observers may therefore see more than one terminal
// notification. WithStrictTermination switches a Tap to forwarding at most one
// terminal notification and dropping a value whose callback faulted.
package rx
