// Package scheduler coalesces change notifications into debounced sync
// cycles.
//
// Notifications merge into a single pending set while a quiet-period timer
// runs; each new notification re-arms the timer, and a ceiling on total
// wait guarantees dispatch under a continuous stream of events. A single
// consumer goroutine executes cycles, so two cycles can never overlap:
// notifications arriving while a cycle runs land in a fresh pending set and
// become the next cycle's input.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"semsync/internal/engine"
)

// Runner executes one sync cycle. Implemented by *engine.Engine.
type Runner interface {
	Sync(ctx context.Context, req engine.Request) (*engine.Stats, error)
}

// pendingSet accumulates merged notifications awaiting dispatch.
type pendingSet struct {
	paths     map[string]struct{}
	full      bool
	source    engine.Source
	firstSeen time.Time
}

// Scheduler debounces notifications and drives the Runner.
type Scheduler struct {
	quiet   time.Duration
	maxWait time.Duration
	runner  Runner
	logger  *zap.Logger

	mu      sync.Mutex
	pending *pendingSet
	timer   *time.Timer

	wake chan struct{}
}

// New creates a Scheduler. maxWait bounds how long a notification can sit
// pending while later ones keep re-arming the quiet timer; zero defaults to
// 5x the quiet period.
func New(runner Runner, quiet, maxWait time.Duration, logger *zap.Logger) *Scheduler {
	if quiet <= 0 {
		quiet = 2 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 5 * quiet
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		quiet:   quiet,
		maxWait: maxWait,
		runner:  runner,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Notify merges paths into the pending set and (re)arms the quiet timer.
// Safe from any goroutine; never blocks on cycle execution.
func (s *Scheduler) Notify(paths []string, source engine.Source) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensurePending(source)
	for _, path := range paths {
		p.paths[path] = struct{}{}
	}
	s.arm(p)
}

// NotifyFull marks the pending set as a full re-scan.
func (s *Scheduler) NotifyFull(source engine.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensurePending(source)
	p.full = true
	s.arm(p)
}

// ensurePending returns the current pending set, creating one stamped with
// firstSeen now. Caller holds s.mu.
func (s *Scheduler) ensurePending(source engine.Source) *pendingSet {
	if s.pending == nil {
		s.pending = &pendingSet{
			paths:     make(map[string]struct{}),
			source:    source,
			firstSeen: time.Now(),
		}
	}
	return s.pending
}

// arm resets the quiet timer, clamped so the set never waits past
// firstSeen+maxWait. Caller holds s.mu.
func (s *Scheduler) arm(p *pendingSet) {
	delay := s.quiet
	if remaining := time.Until(p.firstSeen.Add(s.maxWait)); remaining < delay {
		delay = remaining
		if delay < 0 {
			delay = 0
		}
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

// fire signals the consumer without blocking; a pending wake absorbs
// duplicates.
func (s *Scheduler) fire() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// take swaps out the pending set so new notifications start a fresh one.
func (s *Scheduler) take() *pendingSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return p
}

// Run executes cycles until ctx is canceled. It is the only goroutine that
// invokes the runner, which makes overlapping cycles impossible.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}

		p := s.take()
		if p == nil {
			continue
		}

		req := engine.Request{
			Full:   p.full,
			Source: p.source,
		}
		if !p.full {
			req.Paths = make([]string, 0, len(p.paths))
			for path := range p.paths {
				req.Paths = append(req.Paths, path)
			}
		}

		s.logger.Debug("dispatching sync cycle",
			zap.String("source", string(p.source)),
			zap.Bool("full", p.full),
			zap.Int("paths", len(req.Paths)),
			zap.Duration("queued", time.Since(p.firstSeen)))

		if _, err := s.runner.Sync(ctx, req); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Lock timeouts and cycle failures are not fatal to the loop.
			// Re-queue the set so nothing is lost; it merges with whatever
			// arrived in the meantime.
			s.logger.Error("sync cycle failed, requeueing", zap.Error(err))
			s.requeue(p)
		}
	}
}

// requeue merges a failed cycle's set back into pending with a fresh
// firstSeen, so the ceiling restarts rather than forcing an immediate
// redispatch.
func (s *Scheduler) requeue(failed *pendingSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensurePending(failed.source)
	p.full = p.full || failed.full
	for path := range failed.paths {
		p.paths[path] = struct{}{}
	}
	s.arm(p)
}

// PendingCount returns the number of distinct pending paths, for status
// reporting.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return 0
	}
	return len(s.pending.paths)
}
