package shards

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type countingShard struct {
	name     string
	interval time.Duration
	cycles   atomic.Int64
	ran      chan struct{}
}

func newCountingShard(name string, interval time.Duration) *countingShard {
	return &countingShard{name: name, interval: interval, ran: make(chan struct{}, 64)}
}

func (c *countingShard) Name() string            { return c.name }
func (c *countingShard) Interval() time.Duration { return c.interval }

func (c *countingShard) RunCycle(ctx context.Context) error {
	c.cycles.Add(1)
	select {
	case c.ran <- struct{}{}:
	default:
	}
	return nil
}

type panickyShard struct {
	interval time.Duration
}

func (p *panickyShard) Name() string            { return "panicky" }
func (p *panickyShard) Interval() time.Duration { return p.interval }
func (p *panickyShard) RunCycle(ctx context.Context) error {
	panic("cycle went sideways")
}

type slowShard struct {
	interval time.Duration
	duration time.Duration
	started  chan struct{}
	finished atomic.Bool
}

func (s *slowShard) Name() string            { return "slow" }
func (s *slowShard) Interval() time.Duration { return s.interval }

func (s *slowShard) RunCycle(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	time.Sleep(s.duration)
	s.finished.Store(true)
	return nil
}

func TestSchedulerRunsEachShardAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	fast := newCountingShard("fast", 2*time.Millisecond)
	slow := newCountingShard("slower", 5*time.Millisecond)
	sched := NewScheduler(zap.NewNop(), fast, slow)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		<-fast.ran
	}
	<-slow.ran
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if fast.cycles.Load() < 3 {
		t.Errorf("fast shard cycles = %d, want >= 3", fast.cycles.Load())
	}
	if slow.cycles.Load() < 1 {
		t.Errorf("slow shard cycles = %d, want >= 1", slow.cycles.Load())
	}
}

func TestSchedulerSurvivesPanickingShard(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	healthy := newCountingShard("healthy", 2*time.Millisecond)
	sched := NewScheduler(zap.NewNop(), &panickyShard{interval: time.Millisecond}, healthy)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		<-healthy.ran
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSchedulerStopWaitsForInFlightCycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	shard := &slowShard{
		interval: time.Millisecond,
		duration: 50 * time.Millisecond,
		started:  make(chan struct{}, 1),
	}
	sched := NewScheduler(zap.NewNop(), shard)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	<-shard.started
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !shard.finished.Load() {
		t.Error("stop returned before the in-flight cycle completed")
	}
}

func TestSchedulerLifecycleIsSingleUse(t *testing.T) {
	sched := NewScheduler(zap.NewNop(), newCountingShard("one", time.Hour))

	if err := sched.Stop(); err == nil {
		t.Error("stop before start should fail")
	}
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.Start(context.Background()); err == nil {
		t.Error("second start should fail")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sched.Stop(); err == nil {
		t.Error("second stop should fail")
	}
}
