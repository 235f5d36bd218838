// Package session manages per-user agent instances with an explicit
// lifecycle: get-or-create, get, shutdown. Each instance owns one turn
// pipeline, one proactive queue, and a running scheduler with the two
// background shards; shutting down stops the scheduler and waits for any
// in-flight shard cycle.
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/carlos/config"
	"github.com/richinex/carlos/llm"
	"github.com/richinex/carlos/pipeline"
	"github.com/richinex/carlos/proactive"
	"github.com/richinex/carlos/retrieval"
	"github.com/richinex/carlos/shards"
	"github.com/richinex/carlos/store"
)

// Instance is one user's wired agent.
type Instance struct {
	UserID   string
	Pipeline *pipeline.Pipeline
	Queue    *proactive.Queue

	scheduler *shards.Scheduler
}

// Shutdown stops the instance's background shards, waiting for in-flight
// cycles. An instance is not restartable after shutdown.
func (i *Instance) Shutdown() error {
	return i.scheduler.Stop()
}

// Manager creates and tracks instances keyed by user. All instances share
// one store and one Reasoning Service client; isolation between users is
// the ownership filter on every store query.
type Manager struct {
	client   *llm.Client
	store    store.Store
	settings config.Settings
	logger   *zap.Logger

	mu        sync.Mutex
	instances map[string]*Instance
}

// NewManager creates an empty manager.
func NewManager(client *llm.Client, st store.Store, settings config.Settings, logger *zap.Logger) *Manager {
	return &Manager{
		client:    client,
		store:     st,
		settings:  settings,
		logger:    logger,
		instances: make(map[string]*Instance),
	}
}

// Get returns the instance for user, if one exists.
func (m *Manager) Get(user string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[user]
	return inst, ok
}

// GetOrCreate returns the existing instance for user or wires and starts a
// new one: queue, retrieval engine, pipeline, and the two shards under a
// scheduler.
func (m *Manager) GetOrCreate(ctx context.Context, user string) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[user]; ok {
		return inst, nil
	}

	logger := m.logger.With(zap.String("user", user))
	queue := proactive.NewQueue(m.store).
		WithPolicy(m.settings.Queue.GapUrgencyThreshold, m.settings.Queue.Cooldown)
	engine := retrieval.NewEngine(m.store, user, logger)
	pipe := pipeline.New(m.client, m.store, engine, queue, user, logger).
		WithLimits(m.settings.Pipeline.MaxReasoningLoops, m.settings.Pipeline.ChunkThreshold)

	curator := shards.NewCuratorShard(m.store, queue, user, logger).
		WithInterval(m.settings.Shards.CuratorInterval)
	thinker := shards.NewThinkerShard(m.store, queue, m.client, user, logger).
		WithInterval(m.settings.Shards.ThinkerInterval)
	scheduler := shards.NewScheduler(logger, curator, thinker)
	if err := scheduler.Start(ctx); err != nil {
		return nil, fmt.Errorf("start shards for %q: %w", user, err)
	}

	inst := &Instance{
		UserID:    user,
		Pipeline:  pipe,
		Queue:     queue,
		scheduler: scheduler,
	}
	m.instances[user] = inst
	logger.Info("session created")
	return inst, nil
}

// Shutdown stops and removes the instance for user.
func (m *Manager) Shutdown(user string) error {
	m.mu.Lock()
	inst, ok := m.instances[user]
	delete(m.instances, user)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session for %q", user)
	}
	return inst.Shutdown()
}

// ShutdownAll stops every instance, returning the first error.
func (m *Manager) ShutdownAll() error {
	m.mu.Lock()
	instances := m.instances
	m.instances = make(map[string]*Instance)
	m.mu.Unlock()

	var firstErr error
	for user, inst := range instances {
		if err := inst.Shutdown(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown %q: %w", user, err)
		}
	}
	return firstErr
}
