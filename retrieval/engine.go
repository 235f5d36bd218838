// Package retrieval translates abstract retrieval requests from the
// reasoning service into store queries.
//
// Information Hiding:
// - Enum-key expansion and the category table
// - Ownership injection (queries never cross user boundaries)
// - Timeframe resolution and merge rules
// - Partial-failure isolation: one bad query never aborts the batch
package retrieval

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/carlos/store"
)

// Query is one retrieval request as produced by the reasoning service's
// structured output. The raw predicate is compiled and expanded before it
// touches the store.
type Query struct {
	Purpose    string         `json:"purpose"`
	Collection string         `json:"collection"`
	Query      map[string]any `json:"query"`
	Timeframe  string         `json:"timeframe"`
	Priority   int            `json:"priority"`
	Limit      int            `json:"limit"`
}

// DefaultLimit caps results per query when the service names none.
const DefaultLimit = 10

// historyField is the array-membership shorthand: a string value on this
// field rewrites to an existence check on the corresponding sub-path.
const historyField = "travel_history"

// Engine executes retrieval query batches for one user.
type Engine struct {
	store  store.Store
	enums  EnumTable
	userID string
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an engine bound to a user.
func NewEngine(s store.Store, userID string, logger *zap.Logger) *Engine {
	return &Engine{
		store:  s,
		enums:  DefaultEnums(),
		userID: userID,
		logger: logger,
		now:    time.Now,
	}
}

// WithEnums overrides the category table.
func (e *Engine) WithEnums(enums EnumTable) *Engine {
	e.enums = enums
	return e
}

// WithClock overrides the time source (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Retrieve executes a batch of queries and returns purpose -> results.
// Queries run highest priority first (stable on ties). A query naming an
// unknown collection, or failing in the store, contributes an empty result
// for its purpose and never aborts the rest.
func (e *Engine) Retrieve(ctx context.Context, queries []Query) map[string][]store.Document {
	ordered := make([]Query, len(queries))
	copy(ordered, queries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	results := make(map[string][]store.Document, len(ordered))
	for _, q := range ordered {
		purpose := q.Purpose
		if purpose == "" {
			purpose = "unknown_purpose"
		}

		docs, err := e.execute(ctx, q)
		if err != nil {
			e.logger.Warn("retrieval query failed",
				zap.String("purpose", purpose),
				zap.String("collection", q.Collection),
				zap.Error(err))
			results[purpose] = []store.Document{}
			continue
		}
		results[purpose] = docs
	}
	return results
}

func (e *Engine) execute(ctx context.Context, q Query) ([]store.Document, error) {
	pred := e.Compile(q.Query)
	pred["user_id"] = store.Eq(e.userID)
	e.applyTimeframe(pred, q.Timeframe)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	docs, err := e.store.Find(ctx, q.Collection, pred, limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

// Compile expands a raw predicate object into a typed store predicate.
// Enum category keys become literal disjunctions, the history field
// becomes a sub-path existence check, nested objects recurse, and
// everything else passes through as equality.
func (e *Engine) Compile(raw map[string]any) store.Predicate {
	pred := store.Predicate{}
	for field, value := range raw {
		switch v := value.(type) {
		case map[string]any:
			pred[field] = store.Nested(e.Compile(v))
		case string:
			if literals, ok := e.enums.Expand(field, v); ok {
				pred[field] = store.In(literals...)
			} else if field == historyField {
				pred[field+"."+v] = store.Exists(true)
			} else {
				pred[field] = store.Eq(v)
			}
		default:
			pred[field] = store.Eq(value)
		}
	}
	return pred
}

// applyTimeframe merges a resolved lower bound into pred, unless the
// predicate already constrains the timestamp field.
func (e *Engine) applyTimeframe(pred store.Predicate, token string) {
	if token == "" || token == "all" || token == "all_time" {
		return
	}
	bound, ok := ResolveTimeframe(token, e.now())
	if !ok || pred.Has("timestamp") {
		return
	}
	pred["timestamp"] = store.After(bound)
}

// SearchByTags returns recent conversation records matching any of tags.
func (e *Engine) SearchByTags(ctx context.Context, tags []string, timeframe string, limit int) ([]store.Document, error) {
	pred := store.Predicate{
		"user_id":       store.Eq(e.userID),
		"semantic_tags": store.In(tags...),
	}
	e.applyTimeframe(pred, timeframe)
	if limit <= 0 {
		limit = DefaultLimit
	}
	return e.store.Find(ctx, store.Conversations, pred, limit)
}

// HybridSearch ranks tag-matching interaction records by cosine similarity
// between queryVec and each stored embedding. The scan is brute force over
// the tag-filtered candidates; queryVec must already be resolved.
func (e *Engine) HybridSearch(ctx context.Context, tags []string, queryVec []float64, timeframe string, limit int) ([]store.Document, error) {
	pred := store.Predicate{
		"user_id": store.Eq(e.userID),
		"tags":    store.In(tags...),
	}
	e.applyTimeframe(pred, timeframe)

	candidates, err := e.store.Find(ctx, store.Interactions, pred, 0)
	if err != nil {
		return nil, err
	}

	type scored struct {
		doc   store.Document
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, doc := range candidates {
		score := Cosine(queryVec, doc.Floats("embedding"))
		doc["similarity"] = score
		ranked = append(ranked, scored{doc: doc, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]store.Document, len(ranked))
	for i, r := range ranked {
		out[i] = r.doc
	}
	return out, nil
}
