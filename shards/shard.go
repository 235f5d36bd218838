// Package shards runs the autonomous background workers: a curator that
// mines recent conversations for significant patterns and a thinker that
// turns those patterns into proactive messages and periodically synthesizes
// cross-conversation insights.
//
// Information Hiding: each shard's thresholds and prompts are private.
// The scheduler only sees the Shard interface; shards only coordinate
// through the store and the proactive queue.
package shards

import (
	"context"
	"time"
)

// Shard is one autonomous background worker. A shard is started once by the
// scheduler and its cycle is invoked at its own fixed interval. Cycle
// failures are logged by the scheduler and never stop the loop.
type Shard interface {
	Name() string
	Interval() time.Duration
	RunCycle(ctx context.Context) error
}
