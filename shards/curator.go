package shards

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/carlos/proactive"
	"github.com/richinex/carlos/store"
)

// Curator thresholds.
const (
	// significanceThreshold is the minimum in-window occurrences before a
	// term becomes a significant pattern.
	significanceThreshold = 3
	// maxPatternUrgency caps frequency-scaled urgency.
	maxPatternUrgency = 0.95
	// gapUrgencyFloor is the minimum urgency for an information-gap
	// thought to be promoted into a direct question.
	gapUrgencyFloor = 0.6
)

// CuratorShard mines the recent conversation window for entities and tags
// that recur often enough to matter, recording each as a ready
// ActiveThought for the thinker to pick up. It also promotes stale, urgent
// information-gap thoughts into direct proactive questions.
type CuratorShard struct {
	store  store.Store
	queue  *proactive.Queue
	userID string
	logger *zap.Logger

	interval  time.Duration
	window    time.Duration
	gapMinAge time.Duration
	now       func() time.Time
}

// NewCuratorShard wires a curator for one user.
func NewCuratorShard(st store.Store, queue *proactive.Queue, userID string, logger *zap.Logger) *CuratorShard {
	return &CuratorShard{
		store:     st,
		queue:     queue,
		userID:    userID,
		logger:    logger,
		interval:  5 * time.Minute,
		window:    24 * time.Hour,
		gapMinAge: 30 * time.Minute,
		now:       time.Now,
	}
}

// WithInterval overrides the cycle interval.
func (c *CuratorShard) WithInterval(d time.Duration) *CuratorShard {
	c.interval = d
	return c
}

// WithClock overrides the time source for tests.
func (c *CuratorShard) WithClock(now func() time.Time) *CuratorShard {
	c.now = now
	return c
}

func (c *CuratorShard) Name() string            { return proactive.ShardCurator }
func (c *CuratorShard) Interval() time.Duration { return c.interval }

// RunCycle runs one curation pass: significant-pattern detection followed
// by information-gap promotion.
func (c *CuratorShard) RunCycle(ctx context.Context) error {
	if err := c.detectPatterns(ctx); err != nil {
		return err
	}
	return c.promoteGaps(ctx)
}

func (c *CuratorShard) detectPatterns(ctx context.Context) error {
	since := c.now().Add(-c.window)
	docs, err := c.store.Find(ctx, store.Conversations, store.Predicate{
		"user_id":   store.Eq(c.userID),
		"timestamp": store.After(since),
	}, 0)
	if err != nil {
		return fmt.Errorf("load conversation window: %w", err)
	}

	freq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range append(doc.Strings("entities"), doc.Strings("tags")...) {
			if term != "" && !seen[term] {
				seen[term] = true
				freq[term]++
			}
		}
	}

	for term, n := range freq {
		if n < significanceThreshold {
			continue
		}
		known, err := c.store.Count(ctx, store.ActiveThoughts, store.Predicate{
			"user_id":   store.Eq(c.userID),
			"pattern":   store.Eq(term),
			"timestamp": store.After(since),
		})
		if err != nil {
			return fmt.Errorf("count existing pattern thoughts: %w", err)
		}
		if known > 0 {
			continue
		}

		urgency := 0.5 + 0.1*float64(n)
		if urgency > maxPatternUrgency {
			urgency = maxPatternUrgency
		}
		_, err = c.store.Insert(ctx, store.ActiveThoughts, store.Document{
			"user_id":      c.userID,
			"shard_type":   proactive.ShardCurator,
			"thought_type": proactive.TypeSignificantPattern,
			"pattern":      term,
			"content":      fmt.Sprintf("%q came up in %d recent conversations", term, n),
			"urgency":      urgency,
			"status":       store.StatusReady,
		})
		if err != nil {
			return fmt.Errorf("record pattern thought: %w", err)
		}
		c.logger.Info("significant pattern recorded",
			zap.String("pattern", term),
			zap.Int("frequency", n),
			zap.Float64("urgency", urgency))
	}
	return nil
}

// promoteGaps turns unresolved, sufficiently urgent information-gap
// thoughts that have sat unanswered past their minimum age into direct
// questions on the queue. Claiming the thought first keeps delivery
// at-most-once even with a thinker running concurrently.
func (c *CuratorShard) promoteGaps(ctx context.Context) error {
	gaps, err := c.store.Find(ctx, store.ActiveThoughts, store.Predicate{
		"user_id":      store.Eq(c.userID),
		"thought_type": store.Eq(proactive.TypeInformationGap),
		"status":       store.Eq(store.StatusReady),
	}, 0)
	if err != nil {
		return fmt.Errorf("load gap thoughts: %w", err)
	}

	cutoff := c.now().Add(-c.gapMinAge)
	for _, gap := range gaps {
		if gap.Float("urgency") < gapUrgencyFloor {
			continue
		}
		if ts, ok := gap.Time("timestamp"); !ok || ts.After(cutoff) {
			continue
		}
		won, err := c.store.ClaimThought(ctx, gap.ID())
		if err != nil {
			return fmt.Errorf("claim gap thought: %w", err)
		}
		if !won {
			continue
		}
		err = c.queue.Enqueue(ctx, proactive.Message{
			UserID:      c.userID,
			ShardType:   proactive.ShardCurator,
			MessageType: proactive.TypeInformationGap,
			Content:     gap.Str("content"),
			Urgency:     gap.Float("urgency"),
		})
		if err != nil {
			c.logger.Warn("enqueue gap question failed", zap.Error(err))
		}
	}
	return nil
}
