package meltdown

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type finished[T any] struct {
	c        Completion[T]
	panicked bool
}

// Meltdown runs registered services and reports their completions in the
// order they finish. It owns the Signal handed to every service.
//
// All methods are safe for concurrent use, except that Wait must not run
// concurrently with Register.
type Meltdown[T any] struct {
	cfg    config
	signal *Signal
	eg     errgroup.Group

	mu       sync.Mutex
	inflight int
	queue    []finished[T]
	changed  chan struct{}
}

// New creates a new Meltdown.
func New[T any](opts ...Option) *Meltdown[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &Meltdown[T]{
		cfg:     cfg,
		signal:  NewSignal(),
		queue:   make([]finished[T], 0, cfg.queueBuffer),
		changed: make(chan struct{}),
	}
}

// Register starts a service. It never blocks and never fails; a nil
// service completes with ErrNilService.
func (m *Meltdown[T]) Register(svc Service[T]) *Meltdown[T] {
	m.start(slot[T]{service: svc})
	return m
}

// RegisterFunc starts fn as a service.
func (m *Meltdown[T]) RegisterFunc(fn func(Token) (T, error)) *Meltdown[T] {
	if fn == nil {
		return m.Register(nil)
	}
	return m.Register(ServiceFunc[T](fn))
}

// RegisterTagged starts a service whose completion carries tag.
func (m *Meltdown[T]) RegisterTagged(tag any, svc Service[T]) *Meltdown[T] {
	m.start(slot[T]{tag: tag, tagged: true, service: svc})
	return m
}

// RegisterTaggedFunc starts fn as a service whose completion carries tag.
func (m *Meltdown[T]) RegisterTaggedFunc(tag any, fn func(Token) (T, error)) *Meltdown[T] {
	if fn == nil {
		return m.RegisterTagged(tag, nil)
	}
	return m.RegisterTagged(tag, ServiceFunc[T](fn))
}

// Trigger fires the shared signal. Calls after the first have no effect.
// Services are not interrupted; each is expected to observe its Token.
func (m *Meltdown[T]) Trigger() {
	if !m.signal.Fire() {
		return
	}
	recordTrigger()
	recordOtelTrigger()
	m.cfg.logger.WithField("pending", m.Len()).Info("Meltdown triggered")
}

// Triggered reports whether Trigger has been called.
func (m *Meltdown[T]) Triggered() bool {
	return m.signal.Fired()
}

// Token returns a Token for the signal shared with every service.
func (m *Meltdown[T]) Token() Token {
	return m.signal.Token()
}

// Len returns the number of completions Next has yet to return.
func (m *Meltdown[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight + len(m.queue)
}

// Next blocks until one service completes, the caller context ends, or no
// service is left. Completions are returned in the order services finished.
//
// If panic isolation is disabled and the completed service panicked, Next
// panics with the service's *PanicError.
func (m *Meltdown[T]) Next(ctx context.Context) (c Completion[T], ok bool, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			f := m.queue[0]
			m.queue[0] = finished[T]{}
			m.queue = m.queue[1:]
			m.mu.Unlock()

			m.report(f)
			return f.c, true, nil
		}
		if m.inflight == 0 {
			m.mu.Unlock()
			return c, false, nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return c, false, ctx.Err()
		}
	}
}

// Completions adapts Next(ctx) into a range-friendly channel.
//
// The returned channel closes when:
//   - Next(ctx) returns ok=false (nothing left in flight), or
//   - Next(ctx) returns err!=nil (typically caller context ended).
//
// Completions never calls Trigger.
func (m *Meltdown[T]) Completions(ctx context.Context) <-chan Completion[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	out := make(chan Completion[T])
	go func() {
		defer close(out)
		for {
			c, ok, err := m.Next(ctx)
			if err != nil || !ok {
				return
			}

			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Shutdown triggers the meltdown and collects every remaining completion.
// It returns early with ctx.Err() if ctx ends before all services return.
func (m *Meltdown[T]) Shutdown(ctx context.Context) ([]Completion[T], error) {
	m.Trigger()

	var out []Completion[T]
	for {
		c, ok, err := m.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, c)
	}
}

// Wait blocks until every started service goroutine has returned.
func (m *Meltdown[T]) Wait() {
	_ = m.eg.Wait()
}

func (m *Meltdown[T]) start(s slot[T]) {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()

	recordRegistered()
	m.entry(s.tag, s.tagged).Debug("Registered service")

	token := m.signal.Token()
	startTime := time.Now()
	m.eg.Go(func() error {
		ctx, span := startServiceSpan(s.tag, s.tagged)
		c, panicked := s.completion(ErrServiceExited), false
		defer func() {
			endServiceSpan(ctx, span, c.Err)
			recordCompleted(c.Err, startTime)
			m.complete(finished[T]{c: c, panicked: panicked})
		}()

		c, panicked = s.run(token)
		return nil
	})
}

func (m *Meltdown[T]) complete(f finished[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inflight--
	m.queue = append(m.queue, f)
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Meltdown[T]) report(f finished[T]) {
	log := m.entry(f.c.Tag, f.c.tagged)
	if !f.panicked {
		if f.c.Err != nil {
			log = log.WithError(f.c.Err)
		}
		log.Debug("Service completed")
		return
	}

	if m.cfg.panicIsolation {
		log.WithError(f.c.Err).Warning("Service panicked")
		return
	}
	log.WithError(f.c.Err).Error("Service panicked without isolation")
	panic(f.c.Err)
}

func (m *Meltdown[T]) entry(tag any, tagged bool) logrus.FieldLogger {
	if !tagged {
		return m.cfg.logger
	}
	return m.cfg.logger.WithField("tag", tag)
}
