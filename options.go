package meltdown

import "github.com/sirupsen/logrus"

// Option configures a Meltdown.
type Option func(*config)

type config struct {
	panicIsolation bool
	logger         logrus.FieldLogger
	queueBuffer    int
}

func defaultConfig() config {
	return config{
		logger: logrus.StandardLogger(),
	}
}

// WithPanicIsolation converts service panics to *PanicError completions.
// When disabled, Next re-panics in the calling goroutine.
func WithPanicIsolation(enabled bool) Option {
	return func(c *config) {
		c.panicIsolation = enabled
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger logrus.FieldLogger) Option {
	if logger == nil {
		panic("meltdown: logger cannot be nil")
	}

	return func(c *config) {
		c.logger = logger
	}
}

// WithQueueBuffer preallocates completion queue capacity.
func WithQueueBuffer(size int) Option {
	if size < 0 {
		panic("meltdown: queue buffer cannot be negative")
	}

	return func(c *config) {
		c.queueBuffer = size
	}
}
