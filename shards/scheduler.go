package shards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler supervises one goroutine per shard, each ticking at the shard's
// own interval. Stop cancels the loops and waits for any in-flight cycle to
// finish; a cycle is never interrupted midway.
type Scheduler struct {
	shards []Shard
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// NewScheduler creates a scheduler over the given shards.
func NewScheduler(logger *zap.Logger, shards ...Shard) *Scheduler {
	return &Scheduler{shards: shards, logger: logger}
}

// Start launches every shard loop. A scheduler starts at most once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	for _, shard := range s.shards {
		s.group.Go(func() error {
			s.loop(ctx, shard)
			return nil
		})
	}
	s.logger.Info("shard scheduler started", zap.Int("shards", len(s.shards)))
	return nil
}

// Stop prevents further cycles and waits for in-flight ones to complete.
// Stopping twice, or before Start, is an error; a stopped scheduler is not
// restartable.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already stopped")
	}
	s.stopped = true
	cancel, group := s.cancel, s.group
	s.mu.Unlock()

	cancel()
	err := group.Wait()
	s.logger.Info("shard scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, shard Shard) {
	ticker := time.NewTicker(shard.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx, shard)
		}
	}
}

// runCycle executes one cycle outside the scheduler's cancellation so that
// stopping waits for the cycle instead of interrupting its writes. Panics
// and errors are contained to the cycle.
func (s *Scheduler) runCycle(ctx context.Context, shard Shard) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("shard cycle panicked",
				zap.String("shard", shard.Name()),
				zap.Any("panic", r))
		}
	}()

	if err := shard.RunCycle(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("shard cycle failed",
			zap.String("shard", shard.Name()),
			zap.Error(err))
	}
}
