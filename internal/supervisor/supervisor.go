// Package supervisor owns the long-running reconciliation fibers,
// coordinates startup replay, and rate-limits nothing itself (that's the
// notifier's job) but is the single place every fiber is registered, per
// spec.md §4.11.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/clock"
)

// Fiber is one named cooperative task with its own cadence. InitialDelay,
// when set, delays the fiber's first run (e.g. aligning daily_report to a
// wall-clock time) before the regular Interval ticker takes over.
type Fiber struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context)
}

// Supervisor starts each registered fiber on its own ticker and restarts a
// fiber's task function if it panics, without taking down its peers.
type Supervisor struct {
	clock  clock.Clock
	fibers []Fiber

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(c clock.Clock) *Supervisor {
	return &Supervisor{clock: c}
}

func (s *Supervisor) Register(f Fiber) {
	s.fibers = append(s.fibers, f)
}

// Start launches every registered fiber as its own goroutine loop, ticking
// at its configured interval until ctx is canceled.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, f := range s.fibers {
		s.wg.Add(1)
		go s.runFiber(ctx, f)
	}
}

func (s *Supervisor) runFiber(ctx context.Context, f Fiber) {
	defer s.wg.Done()

	if f.InitialDelay > 0 {
		wait := s.clock.NewTicker(f.InitialDelay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-wait.C():
		}
		wait.Stop()
		s.runOnce(ctx, f)
	}

	ticker := s.clock.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.runOnce(ctx, f)
		}
	}
}

// runOnce invokes a fiber's task, recovering from a panic so one crashing
// fiber never takes down its peers; it logs and resumes on the next tick.
func (s *Supervisor) runOnce(ctx context.Context, f Fiber) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("fiber", f.Name).Interface("panic", r).Msg("fiber panicked, will retry next tick")
		}
	}()
	f.Run(ctx)
}

// Shutdown cancels every fiber and waits for them to drain.
func (s *Supervisor) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RetryStartupReplay attempts fn up to maxAttempts times with backoff
// between attempts. Used at init to make each startup-set snapshot fetch
// resilient to a transient failure (spec.md §4.11's startup sequence);
// never used to place a mirror for a startup-set order, since those are
// permanently excluded from mirroring regardless of fetch outcome.
func RetryStartupReplay(ctx context.Context, c clock.Clock, maxAttempts int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.Sleep(backoff)
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return lastErr
}
