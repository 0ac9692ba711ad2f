package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/web3guy0/polybot/internal/clock"
)

type fakeTicker struct {
	c chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               {}

type fakeClock struct {
	tickers []*fakeTicker
}

func (f *fakeClock) Now() time.Time { return time.Now() }
func (f *fakeClock) Sleep(d time.Duration) {}
func (f *fakeClock) NewTicker(d time.Duration) clock.Ticker {
	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

func TestFiberRunsOnTick(t *testing.T) {
	fc := &fakeClock{}
	s := New(fc)

	var calls int32
	s.Register(Fiber{Name: "test", Interval: time.Millisecond, Run: func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
	}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	fc.tickers[0].c <- time.Now()
	time.Sleep(20 * time.Millisecond)

	cancel()
	s.Shutdown()

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected fiber to run at least once after a tick")
	}
}

func TestFiberPanicDoesNotStopSupervisor(t *testing.T) {
	fc := &fakeClock{}
	s := New(fc)

	var calls int32
	s.Register(Fiber{Name: "panicky", Interval: time.Millisecond, Run: func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
		panic("boom")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	fc.tickers[0].c <- time.Now()
	time.Sleep(20 * time.Millisecond)

	cancel()
	s.Shutdown()

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected panicking fiber to still have run")
	}
}

func TestFiberWithInitialDelayRunsOnceBeforeRegularTicker(t *testing.T) {
	fc := &fakeClock{}
	s := New(fc)

	var calls int32
	s.Register(Fiber{Name: "daily", Interval: time.Hour, InitialDelay: time.Minute, Run: func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
	}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	if len(fc.tickers) != 1 {
		t.Fatalf("expected the initial-delay ticker to be created first, got %d tickers", len(fc.tickers))
	}
	fc.tickers[0].c <- time.Now()
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 run after the initial delay fires, got %d", calls)
	}
	if len(fc.tickers) != 2 {
		t.Fatalf("expected the regular interval ticker to be created after the initial delay, got %d tickers", len(fc.tickers))
	}

	cancel()
	s.Shutdown()
}

func TestRetryStartupReplaySucceedsEventually(t *testing.T) {
	fc := &fakeClock{}
	attempts := 0
	err := RetryStartupReplay(context.Background(), fc, 3, time.Millisecond, func() error {
		attempts++
		if attempts < 2 {
			return context.DeadlineExceeded
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}
