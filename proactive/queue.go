// Package proactive holds messages the background shards want to say to the
// user and decides when the foreground turn should deliver one.
//
// Information Hiding: the queue's ordering and injection policy are private.
// Callers enqueue candidates and ask ShouldInject/DequeueNext; they never see
// the backing slice. The queue is process-local state guarded by one mutex;
// durability of the underlying thought is the store's job, recorded at
// enqueue time.
package proactive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/carlos/store"
)

// Message is one pending proactive delivery.
type Message struct {
	ID          string
	UserID      string
	ShardType   string
	MessageType string
	Content     string
	Urgency     float64
	CreatedAt   time.Time
}

const (
	// DefaultGapThreshold is the urgency at which a pending message jumps
	// the cooldown and is injected on the next turn.
	DefaultGapThreshold = 0.7
	// DefaultCooldown is the minimum quiet period between deliveries for
	// messages below the gap threshold.
	DefaultCooldown = 5 * time.Minute
)

// Queue serializes enqueue and dequeue between the shards and the turn
// pipeline. At-most-once delivery: a dequeued message is gone.
type Queue struct {
	mu            sync.Mutex
	pending       []Message
	lastDelivered time.Time

	store        store.Store
	gapThreshold float64
	cooldown     time.Duration
	now          func() time.Time
}

// NewQueue creates an empty queue persisting enqueued candidates through st.
func NewQueue(st store.Store) *Queue {
	return &Queue{
		store:        st,
		gapThreshold: DefaultGapThreshold,
		cooldown:     DefaultCooldown,
		now:          time.Now,
	}
}

// WithPolicy overrides the injection thresholds.
func (q *Queue) WithPolicy(gapThreshold float64, cooldown time.Duration) *Queue {
	q.gapThreshold = gapThreshold
	q.cooldown = cooldown
	return q
}

// WithClock overrides the time source for tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue appends a candidate and durably records it as a queued
// ActiveThought. The queued status keeps the record out of the shards' ready
// scans, so an already-promoted question is never picked up and asked again.
// The message is queued even if persistence fails; the error reports the lost
// audit trail.
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = q.now()
	}

	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()

	_, err := q.store.Insert(ctx, store.ActiveThoughts, store.Document{
		"_id":          msg.ID,
		"user_id":      msg.UserID,
		"shard_type":   msg.ShardType,
		"thought_type": msg.MessageType,
		"content":      msg.Content,
		"urgency":      msg.Urgency,
		"status":       store.StatusQueued,
		"timestamp":    msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("persist proactive thought: %w", err)
	}
	return nil
}

// ShouldInject reports whether the next turn should deliver a queued message
// instead of running the normal pipeline: the queue must be non-empty, and
// either some pending urgency reaches the gap threshold or the cooldown since
// the last delivery has elapsed.
func (q *Queue) ShouldInject() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return false
	}
	for _, m := range q.pending {
		if m.Urgency >= q.gapThreshold {
			return true
		}
	}
	return q.now().Sub(q.lastDelivered) >= q.cooldown
}

// DequeueNext removes and returns the highest-urgency pending message, with
// insertion order breaking ties. The second return is false when the queue is
// empty. Delivery time is recorded for the cooldown.
func (q *Queue) DequeueNext() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Message{}, false
	}
	best := 0
	for i := 1; i < len(q.pending); i++ {
		if q.pending[i].Urgency > q.pending[best].Urgency {
			best = i
		}
	}
	msg := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	q.lastDelivered = q.now()
	return msg, true
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
