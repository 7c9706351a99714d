package meltdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func TestSignalFireIsIdempotent(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)
	s := NewSignal()
	token := s.Token()

	g.Expect(s.Fired()).To(BeFalse())
	g.Expect(token.Fired()).To(BeFalse())
	g.Expect(token.Err()).To(BeNil())

	g.Expect(s.Fire()).To(BeTrue())
	g.Expect(s.Fire()).To(BeFalse())
	g.Expect(s.Fire()).To(BeFalse())

	g.Expect(s.Fired()).To(BeTrue())
	g.Expect(token.Fired()).To(BeTrue())
	g.Expect(token.Err()).To(MatchError(ErrTriggered))
}

func TestSignalConcurrentFireTransitionsOnce(t *testing.T) {
	t.Parallel()

	const callers = 64
	const waiters = 64

	s := NewSignal()

	var released atomic.Int32
	var waitersDone sync.WaitGroup
	for i := 0; i < waiters; i++ {
		token := s.Token()
		waitersDone.Add(1)
		go func() {
			defer waitersDone.Done()
			<-token.Done()
			released.Add(1)
		}()
	}

	var transitions atomic.Int32
	var start sync.WaitGroup
	var firing sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		firing.Add(1)
		go func() {
			defer firing.Done()
			start.Wait()
			if s.Fire() {
				transitions.Add(1)
			}
		}()
	}
	start.Done()
	firing.Wait()
	waitersDone.Wait()

	if got := transitions.Load(); got != 1 {
		t.Fatalf("expected exactly one transition, got %d", got)
	}
	if got := released.Load(); got != waiters {
		t.Fatalf("expected %d released waiters, got %d", waiters, got)
	}
}

func TestTokenNoMissedWakeup(t *testing.T) {
	t.Parallel()

	for i := 0; i < 500; i++ {
		s := NewSignal()
		done := make(chan struct{})
		go func() {
			defer close(done)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Token().Wait(ctx); err != nil {
				t.Errorf("iteration %d: token missed fire: %v", i, err)
			}
		}()
		go s.Fire()
		<-done
	}
}

func TestTokenAfterFireResolvesImmediately(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)
	s := NewSignal()
	s.Fire()

	token := s.Token()
	g.Expect(token.Done()).To(BeClosed())
	g.Expect(token.Wait(context.Background())).To(Succeed())
}

func TestTokenWaitHonorsContext(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)
	token := NewSignal().Token()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	g.Expect(token.Wait(ctx)).To(MatchError(context.DeadlineExceeded))
}

func TestZeroTokenNeverFires(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)
	var token Token

	g.Expect(token.Fired()).To(BeFalse())
	g.Consistently(token.Done(), 20*time.Millisecond).ShouldNot(BeClosed())

	ctx, cancel := token.Context(context.Background())
	cancel()
	g.Expect(context.Cause(ctx)).To(MatchError(context.Canceled))
}

func TestTokenContextCancelledOnFire(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)
	s := NewSignal()

	ctx, cancel := s.Token().Context(context.Background())
	defer cancel()

	g.Expect(ctx.Err()).To(BeNil())
	s.Fire()

	g.Eventually(ctx.Done(), time.Second).Should(BeClosed())
	g.Expect(errors.Is(context.Cause(ctx), ErrTriggered)).To(BeTrue())
}

func TestTokenContextCancelFuncStopsWatcher(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)
	s := NewSignal()

	ctx, cancel := s.Token().Context(context.Background())
	cancel()
	cancel()

	g.Expect(ctx.Err()).To(MatchError(context.Canceled))
	g.Expect(context.Cause(ctx)).To(MatchError(context.Canceled))

	s.Fire()
	g.Expect(context.Cause(ctx)).To(MatchError(context.Canceled))
}

func TestTokenContextFollowsParent(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)
	parent, parentCancel := context.WithCancel(context.Background())

	ctx, cancel := NewSignal().Token().Context(parent)
	defer cancel()

	parentCancel()
	g.Eventually(ctx.Done(), time.Second).Should(BeClosed())
	g.Expect(context.Cause(ctx)).To(MatchError(context.Canceled))
}
