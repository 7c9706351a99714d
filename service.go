package meltdown

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrNilService is the completion error of a nil service registration.
	ErrNilService = errors.New("meltdown: nil service")

	// ErrServiceExited is the completion error of a service that called runtime.Goexit.
	ErrServiceExited = errors.New("meltdown: service goroutine exited")
)

// Service is a long running unit of work. When the Token fires the service
// is expected to begin a graceful shutdown and return.
type Service[T any] interface {
	Run(token Token) (T, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc[T any] func(Token) (T, error)

// Run calls f(token).
func (f ServiceFunc[T]) Run(token Token) (T, error) {
	return f(token)
}

// Completion is the terminal outcome of one registered service.
type Completion[T any] struct {
	Tag   any
	Value T
	Err   error

	tagged bool
}

// Tagged reports whether the service was registered with a tag.
func (c Completion[T]) Tagged() bool {
	return c.tagged
}

// PanicError is the completion error of a service that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("meltdown: panic recovered: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// slot holds one registered service until it has been started.
type slot[T any] struct {
	tag     any
	tagged  bool
	service Service[T]
}

// run executes the service and returns its completion. A panic is captured
// into a *PanicError; runtime.Goexit unwinds past run and is handled by the caller.
func (s slot[T]) run(token Token) (c Completion[T], panicked bool) {
	c = s.completion(nil)
	if s.service == nil {
		c.Err = ErrNilService
		return c, false
	}

	defer func() {
		if r := recover(); r != nil {
			c.Err = &PanicError{Value: r, Stack: debug.Stack()}
			panicked = true
		}
	}()

	c.Value, c.Err = s.service.Run(token)
	return c, false
}

func (s slot[T]) completion(err error) Completion[T] {
	return Completion[T]{Tag: s.tag, Err: err, tagged: s.tagged}
}
