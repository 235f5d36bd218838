package shards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/carlos/llm"
	"github.com/richinex/carlos/proactive"
	"github.com/richinex/carlos/store"
)

// Thinker thresholds.
const (
	// maxThoughtsPerCycle bounds how many curator thoughts one cycle
	// consumes.
	maxThoughtsPerCycle = 3
	// minAnalysisConfidence gates rendering a proactive message from an
	// analysis.
	minAnalysisConfidence = 0.8
	// minAnalysisLength filters trivial analyses.
	minAnalysisLength = 80
	// followUpPattern marks generic analyses that never become messages.
	followUpPattern = "thread_follow_up"

	// minSynthesisConfidence gates accepting a cyclical insight.
	minSynthesisConfidence = 0.6
	// noveltyWindow is how far back near-duplicate insights suppress a
	// new one.
	noveltyWindow = 6 * time.Hour
	// noveltyJaccard is the token-set similarity above which an insight
	// counts as a near-duplicate.
	noveltyJaccard = 0.7
	// maxRecentChains caps thinking chains in the lookback window.
	maxRecentChains = 3
	// chainLookback is the anti-spam window for counting recent chains.
	chainLookback = 24 * time.Hour
	// maxFragments is the sample size for cyclical synthesis.
	maxFragments = 5
)

type analysisOutput struct {
	Confidence      float64 `json:"confidence"`
	Analysis        string  `json:"analysis"`
	PatternType     string  `json:"pattern_type"`
	InformationGaps []struct {
		Question string  `json:"question"`
		Urgency  float64 `json:"urgency"`
	} `json:"information_gaps"`
}

type renderOutput struct {
	Message string `json:"message"`
}

type synthesisOutput struct {
	Insight    string  `json:"insight"`
	Confidence float64 `json:"confidence"`
	Actionable string  `json:"actionable"`
}

var analysisSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"confidence": {"type": "number"},
		"analysis": {"type": "string"},
		"pattern_type": {"type": "string"},
		"information_gaps": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"question": {"type": "string"},
					"urgency": {"type": "number"}
				},
				"required": ["question", "urgency"]
			}
		}
	},
	"required": ["confidence", "analysis", "pattern_type"]
}`)

var renderSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"message": {"type": "string"}},
	"required": ["message"]
}`)

var synthesisSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"insight": {"type": "string"},
		"confidence": {"type": "number"},
		"actionable": {"type": "string"}
	},
	"required": ["insight", "confidence"]
}`)

const analysisPrompt = `You analyze one observed pattern from a user's conversation history.
Explain what the pattern likely means for the user, rate your confidence
between 0 and 1, and classify the pattern type. Use the type "thread_follow_up"
for generic continuations not worth raising. List any concrete information
gaps as questions with an urgency between 0 and 1.`

const renderPrompt = `Turn the given internal analysis into one short, natural, friendly message
to the user. No preamble, no meta commentary about analyses or patterns.`

const synthesisPrompt = `You are given several unrelated fragments of a user's past conversations.
Find one non-obvious connection across them. State the insight, rate your
confidence between 0 and 1, and, if the insight suggests something the user
could act on, phrase that as a short actionable message.`

// ThinkerShard consumes the curator's ready thoughts and, separately,
// synthesizes cyclical insights across older conversation fragments.
type ThinkerShard struct {
	store  store.Store
	queue  *proactive.Queue
	llm    *llm.Client
	userID string
	logger *zap.Logger

	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

// NewThinkerShard wires a thinker for one user.
func NewThinkerShard(st store.Store, queue *proactive.Queue, client *llm.Client, userID string, logger *zap.Logger) *ThinkerShard {
	return &ThinkerShard{
		store:    st,
		queue:    queue,
		llm:      client,
		userID:   userID,
		logger:   logger,
		interval: 15 * time.Minute,
		window:   24 * time.Hour,
		now:      time.Now,
	}
}

// WithInterval overrides the cycle interval.
func (t *ThinkerShard) WithInterval(d time.Duration) *ThinkerShard {
	t.interval = d
	return t
}

// WithClock overrides the time source for tests.
func (t *ThinkerShard) WithClock(now func() time.Time) *ThinkerShard {
	t.now = now
	return t
}

func (t *ThinkerShard) Name() string            { return proactive.ShardThinker }
func (t *ThinkerShard) Interval() time.Duration { return t.interval }

// RunCycle runs both sub-cycles; they are independent, so one failing does
// not skip the other.
func (t *ThinkerShard) RunCycle(ctx context.Context) error {
	return errors.Join(
		t.processThoughts(ctx),
		t.synthesizeCyclical(ctx),
	)
}

// processThoughts consumes up to maxThoughtsPerCycle ready curator thoughts,
// highest urgency first. Claiming happens before analysis so a thought is
// consumed at most once even if every downstream step fails.
func (t *ThinkerShard) processThoughts(ctx context.Context) error {
	thoughts, err := t.store.Find(ctx, store.ActiveThoughts, store.Predicate{
		"user_id":      store.Eq(t.userID),
		"thought_type": store.Eq(proactive.TypeSignificantPattern),
		"status":       store.Eq(store.StatusReady),
		"timestamp":    store.After(t.now().Add(-t.window)),
	}, 0)
	if err != nil {
		return fmt.Errorf("load ready thoughts: %w", err)
	}
	sort.SliceStable(thoughts, func(i, j int) bool {
		return thoughts[i].Float("urgency") > thoughts[j].Float("urgency")
	})

	consumed := 0
	for _, thought := range thoughts {
		if consumed >= maxThoughtsPerCycle {
			break
		}
		won, err := t.store.ClaimThought(ctx, thought.ID())
		if err != nil {
			return fmt.Errorf("claim thought: %w", err)
		}
		if !won {
			continue
		}
		consumed++
		if err := t.analyzeThought(ctx, thought); err != nil {
			t.logger.Warn("thought analysis failed",
				zap.String("thought", thought.ID()),
				zap.Error(err))
		}
	}
	return nil
}

func (t *ThinkerShard) analyzeThought(ctx context.Context, thought store.Document) error {
	req := llm.NewRequest(
		llm.SystemMessage(analysisPrompt),
		llm.UserMessage("Observed pattern: "+thought.Str("content")),
	).WithFormat(llm.NewJSONSchemaFormat("analysis", analysisSchema)).WithTemperature(0)

	var analysis analysisOutput
	if err := t.llm.Structured(ctx, req, &analysis); err != nil {
		return err
	}

	for _, gap := range analysis.InformationGaps {
		_, err := t.store.Insert(ctx, store.ActiveThoughts, store.Document{
			"user_id":      t.userID,
			"shard_type":   proactive.ShardThinker,
			"thought_type": proactive.TypeInformationGap,
			"content":      gap.Question,
			"urgency":      gap.Urgency,
			"status":       store.StatusReady,
		})
		if err != nil {
			t.logger.Warn("record information gap failed", zap.Error(err))
		}
	}

	if analysis.Confidence < minAnalysisConfidence ||
		len(analysis.Analysis) < minAnalysisLength ||
		analysis.PatternType == followUpPattern {
		t.logger.Debug("analysis filtered out",
			zap.Float64("confidence", analysis.Confidence),
			zap.String("pattern_type", analysis.PatternType))
		return nil
	}

	message, err := t.render(ctx, analysis.Analysis)
	if err != nil {
		return err
	}
	if message == "" {
		return nil
	}
	return t.queue.Enqueue(ctx, proactive.Message{
		UserID:      t.userID,
		ShardType:   proactive.ShardThinker,
		MessageType: proactive.TypeAnalysis,
		Content:     message,
		Urgency:     thought.Float("urgency"),
	})
}

// render turns an internal analysis into a user-facing message.
func (t *ThinkerShard) render(ctx context.Context, analysis string) (string, error) {
	req := llm.NewRequest(
		llm.SystemMessage(renderPrompt),
		llm.UserMessage(analysis),
	).WithFormat(llm.NewJSONSchemaFormat("render", renderSchema)).WithTemperature(0)

	var out renderOutput
	if err := t.llm.Structured(ctx, req, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// synthesizeCyclical samples entity-diverse conversation fragments and asks
// for one cross-cutting insight, suppressed when near-duplicate of a recent
// one.
func (t *ThinkerShard) synthesizeCyclical(ctx context.Context) error {
	now := t.now()
	chains, err := t.store.Count(ctx, store.Insights, store.Predicate{
		"user_id":      store.Eq(t.userID),
		"insight_type": store.Eq("cyclical"),
		"timestamp":    store.After(now.Add(-chainLookback)),
	})
	if err != nil {
		return fmt.Errorf("count recent chains: %w", err)
	}
	if chains >= maxRecentChains {
		return nil
	}

	candidates, err := t.store.Find(ctx, store.Conversations,
		store.Predicate{"user_id": store.Eq(t.userID)}, 30)
	if err != nil {
		return fmt.Errorf("load fragments: %w", err)
	}
	fragments := sampleDiverse(candidates, maxFragments)
	if len(fragments) < 2 {
		return nil
	}

	payload := ""
	for i, frag := range fragments {
		payload += fmt.Sprintf("Fragment %d: %s\n", i+1, frag.Str("summary"))
	}
	req := llm.NewRequest(
		llm.SystemMessage(synthesisPrompt),
		llm.UserMessage(payload),
	).WithFormat(llm.NewJSONSchemaFormat("synthesis", synthesisSchema)).WithTemperature(0.7)

	var synth synthesisOutput
	if err := t.llm.Structured(ctx, req, &synth); err != nil {
		return err
	}
	if synth.Confidence < minSynthesisConfidence || synth.Insight == "" {
		return nil
	}

	novel, err := t.isNovel(ctx, synth.Insight, now)
	if err != nil {
		return err
	}
	if !novel {
		t.logger.Debug("cyclical insight suppressed as near-duplicate")
		return nil
	}

	_, err = t.store.Insert(ctx, store.Insights, store.Document{
		"user_id":      t.userID,
		"insight":      synth.Insight,
		"insight_type": "cyclical",
		"confidence":   synth.Confidence,
		"fragments":    len(fragments),
	})
	if err != nil {
		return fmt.Errorf("persist cyclical insight: %w", err)
	}

	if synth.Actionable == "" {
		return nil
	}
	return t.queue.Enqueue(ctx, proactive.Message{
		UserID:      t.userID,
		ShardType:   proactive.ShardThinker,
		MessageType: proactive.TypeCyclicalInsight,
		Content:     synth.Actionable,
		Urgency:     synth.Confidence,
	})
}

// isNovel reports whether the insight is not a near-duplicate of anything
// from the novelty window.
func (t *ThinkerShard) isNovel(ctx context.Context, insight string, now time.Time) (bool, error) {
	recent, err := t.store.Find(ctx, store.Insights, store.Predicate{
		"user_id":   store.Eq(t.userID),
		"timestamp": store.After(now.Add(-noveltyWindow)),
	}, 0)
	if err != nil {
		return false, fmt.Errorf("load recent insights: %w", err)
	}
	for _, doc := range recent {
		if Jaccard(insight, doc.Str("insight")) > noveltyJaccard {
			return false, nil
		}
	}
	return true, nil
}

// sampleDiverse picks up to n fragments, skipping any that shares an entity
// or tag with one already chosen.
func sampleDiverse(docs []store.Document, n int) []store.Document {
	chosen := make(map[string]bool)
	var out []store.Document
	for _, doc := range docs {
		if len(out) >= n {
			break
		}
		terms := append(doc.Strings("entities"), doc.Strings("tags")...)
		overlap := false
		for _, term := range terms {
			if chosen[term] {
				overlap = true
				break
			}
		}
		if overlap {
			continue
		}
		for _, term := range terms {
			chosen[term] = true
		}
		out = append(out, doc)
	}
	return out
}
