package meltdown

import (
	"context"
	"errors"
	"sync"
)

// ErrTriggered is reported by a Token once its Signal has fired.
var ErrTriggered = errors.New("meltdown: shutdown triggered")

// Signal is a single-fire shutdown flag. Once fired it stays fired.
type Signal struct {
	mu    sync.Mutex
	fired bool
	done  chan struct{}
}

// NewSignal creates an unfired Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire marks the signal as fired and wakes every waiter.
// It reports whether this call performed the transition.
func (s *Signal) Fire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fired {
		return false
	}
	s.fired = true
	close(s.done)
	return true
}

// Fired reports whether Fire has been called.
func (s *Signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Token returns a read-only handle to the signal.
func (s *Signal) Token() Token {
	return Token{done: s.done}
}

// Token resolves once its Signal fires. Copies share the same Signal.
// The zero Token never fires.
type Token struct {
	done <-chan struct{}
}

// Done returns a channel that is closed when the signal fires.
func (t Token) Done() <-chan struct{} {
	return t.done
}

// Fired reports whether the signal has fired.
func (t Token) Fired() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns ErrTriggered after the signal fires and nil before.
func (t Token) Err() error {
	if t.Fired() {
		return ErrTriggered
	}
	return nil
}

// Wait blocks until the signal fires or ctx ends.
func (t Token) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context derives a context from parent that is cancelled with cause
// ErrTriggered when the signal fires.
func (t Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancelCause(parent)
	if t.done == nil {
		return ctx, func() { cancel(context.Canceled) }
	}

	stop := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-t.done:
			cancel(ErrTriggered)
		case <-ctx.Done():
		case <-stop:
		}
	}()

	return ctx, func() {
		once.Do(func() { close(stop) })
		cancel(context.Canceled)
	}
}
