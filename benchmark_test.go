package meltdown

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type benchResult struct {
	value int
	err   error
}

func BenchmarkMeltdown(b *testing.B) {
	workloads := []struct {
		name     string
		mixed    bool
		services int
		waitAt   int
	}{
		{name: "short/no_wait", mixed: false, services: 256, waitAt: 0},
		{name: "short/wait_half", mixed: false, services: 256, waitAt: 2},
		{name: "mixed/no_wait", mixed: true, services: 256, waitAt: 0},
		{name: "mixed/wait_half", mixed: true, services: 256, waitAt: 2},
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	for _, tc := range workloads {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if err := runMeltdownCase(logger, tc.services, tc.mixed, tc.waitAt); err != nil {
					b.Fatalf("run failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkErrgroupChannel(b *testing.B) {
	workloads := []struct {
		name     string
		mixed    bool
		services int
		waitAt   int
	}{
		{name: "short/no_wait", mixed: false, services: 256, waitAt: 0},
		{name: "short/wait_half", mixed: false, services: 256, waitAt: 2},
		{name: "mixed/no_wait", mixed: true, services: 256, waitAt: 0},
		{name: "mixed/wait_half", mixed: true, services: 256, waitAt: 2},
	}

	for _, tc := range workloads {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if err := runErrgroupChannelCase(tc.services, tc.mixed, tc.waitAt); err != nil {
					b.Fatalf("run failed: %v", err)
				}
			}
		})
	}
}

func runMeltdownCase(logger logrus.FieldLogger, services int, mixed bool, waitAt int) error {
	m := New[int](WithLogger(logger), WithQueueBuffer(services))

	for i := 0; i < services; i++ {
		idx := i
		m.RegisterFunc(func(token Token) (int, error) {
			return runBenchService(token.Done(), idx, mixed, waitAt)
		})
	}

	count := 0
	for {
		_, ok, err := m.Next(context.Background())
		if err != nil {
			return fmt.Errorf("next failed: %w", err)
		}
		if !ok {
			break
		}
		count++
		if count == 1 {
			m.Trigger()
		}
	}

	if count != services {
		return fmt.Errorf("expected %d completions, got %d", services, count)
	}
	return nil
}

func runErrgroupChannelCase(services int, mixed bool, waitAt int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eg errgroup.Group
	results := make(chan benchResult, services)
	waitDone := make(chan error, 1)

	for i := 0; i < services; i++ {
		idx := i
		eg.Go(func() error {
			value, err := runBenchService(ctx.Done(), idx, mixed, waitAt)
			results <- benchResult{value: value, err: err}
			return nil
		})
	}

	go func() {
		waitDone <- eg.Wait()
		close(results)
	}()

	count := 0
	for range results {
		count++
		if count == 1 {
			cancel()
		}
	}

	if err := <-waitDone; err != nil {
		return fmt.Errorf("unexpected wait error: %w", err)
	}
	if count != services {
		return errors.New("lost completions")
	}
	return nil
}

func runBenchService(done <-chan struct{}, idx int, mixed bool, waitAt int) (int, error) {
	if waitAt > 0 && idx%waitAt == 1 {
		<-done
		return idx, nil
	}

	if mixed && idx%8 == 0 {
		select {
		case <-done:
		case <-time.After(200 * time.Microsecond):
		}
	}

	return idx, nil
}
