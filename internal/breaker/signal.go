// Package breaker provides the cooperative cancellation signal shared by breakable
// blocks, loops and spawned processes.
package breaker

import "context"

// Signal is a hierarchical stop flag. Cancelling a signal cancels every child
// derived from it; evaluation polls IsCancelled at statement and iteration
// boundaries and is never interrupted mid-step.
type Signal struct {
	context context.Context
	cancel  context.CancelFunc
}

// NewSignal creates a root signal bound to the parent context.
func NewSignal(parent context.Context) *Signal {
	if parent == nil {
		parent = context.Background()
	}
	derivedContext, cancel := context.WithCancel(parent)
	return &Signal{context: derivedContext, cancel: cancel}
}

// Child derives a signal that stops when either the receiver or the child is cancelled.
func (signal *Signal) Child() *Signal {
	if signal == nil {
		return NewSignal(context.Background())
	}
	return NewSignal(signal.context)
}

// Cancel raises the flag for the receiver and its children.
func (signal *Signal) Cancel() {
	if signal == nil {
		return
	}
	signal.cancel()
}

// IsCancelled reports whether the flag has been raised.
func (signal *Signal) IsCancelled() bool {
	if signal == nil {
		return false
	}
	return signal.context.Err() != nil
}

// Context exposes the signal as a context for blocking collaborators such as the spawner.
func (signal *Signal) Context() context.Context {
	if signal == nil {
		return context.Background()
	}
	return signal.context
}

// Done returns a channel closed once the signal is cancelled.
func (signal *Signal) Done() <-chan struct{} {
	return signal.Context().Done()
}
