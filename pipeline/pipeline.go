package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/carlos/internal/segment"
	"github.com/richinex/carlos/llm"
	"github.com/richinex/carlos/proactive"
	"github.com/richinex/carlos/retrieval"
	"github.com/richinex/carlos/store"
)

// DefaultMaxLoops bounds the reasoning loop per turn. The loop always
// terminates within this many iterations regardless of sufficiency answers.
const DefaultMaxLoops = 5

// FallbackMessage is the one generic user-visible failure message; any
// Reasoning Service failure aborts the turn with it.
const FallbackMessage = "I'm not sure how to respond to that right now."

// Pipeline answers one user's turns. Turns for one user run sequentially;
// distinct users get distinct pipelines.
type Pipeline struct {
	llm    *llm.Client
	store  store.Store
	engine *retrieval.Engine
	queue  *proactive.Queue
	userID string
	logger *zap.Logger

	maxLoops       int
	chunkThreshold int
	now            func() time.Time
}

// New wires a pipeline for one user.
func New(client *llm.Client, st store.Store, engine *retrieval.Engine, queue *proactive.Queue, userID string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		llm:            client,
		store:          st,
		engine:         engine,
		queue:          queue,
		userID:         userID,
		logger:         logger,
		maxLoops:       DefaultMaxLoops,
		chunkThreshold: DefaultChunkThreshold,
		now:            time.Now,
	}
}

// WithLimits overrides the loop and chunking bounds.
func (p *Pipeline) WithLimits(maxLoops, chunkThreshold int) *Pipeline {
	p.maxLoops = maxLoops
	p.chunkThreshold = chunkThreshold
	return p
}

// WithClock overrides the time source for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Respond answers one user message. On a Reasoning Service failure it
// returns FallbackMessage together with the error. A persist failure after
// generation returns the generated response together with the error; the
// response is not lost, only the audit trail may be incomplete.
func (p *Pipeline) Respond(ctx context.Context, message string) (string, error) {
	return p.run(ctx, message, nil)
}

// Stream answers one user message, sending typed events to events as the
// turn progresses: one status per phase, then text and marker events from
// the generator, then a terminal done event. The channel is not closed.
func (p *Pipeline) Stream(ctx context.Context, message string, events chan<- Event) error {
	_, err := p.run(ctx, message, events)
	return err
}

func (p *Pipeline) run(ctx context.Context, message string, events chan<- Event) (string, error) {
	emit := func(e Event) {
		if events != nil {
			events <- e
		}
	}

	// Proactive short-circuit: a queued background message, when eligible,
	// replaces the normal turn.
	if p.queue != nil && p.queue.ShouldInject() {
		if msg, ok := p.queue.DequeueNext(); ok {
			formatted := proactive.Format(msg)
			p.logger.Info("injected proactive message",
				zap.String("shard", msg.ShardType),
				zap.String("type", msg.MessageType))
			emit(textEvent(formatted))
			emit(doneEvent())
			return formatted, nil
		}
	}

	emit(statusEvent(PhaseSummarizing, "Carlos is thinking..."))
	var summary string
	var tags []string
	if len(message) > p.chunkThreshold {
		var err error
		summary, tags, err = p.summarizeChunks(ctx, message)
		if err != nil {
			emit(doneEvent())
			return FallbackMessage, err
		}
	} else {
		out, err := p.summarize(ctx, message, false)
		if err != nil {
			emit(doneEvent())
			return FallbackMessage, err
		}
		summary, tags = out.Summary, out.Tags
	}

	emit(statusEvent(PhaseEmbedding, "Hmm, let me think about that..."))
	queryVector := p.embed(ctx, summary)

	rc := NewReasoningContext(summary, tags)
	for loop := 1; loop <= p.maxLoops; loop++ {
		think, err := p.think(ctx, message, rc)
		if err != nil {
			emit(doneEvent())
			return FallbackMessage, err
		}
		emit(statusEvent(PhaseThinking, think.Reasoning))

		// Unconditional audit trail, never gates behavior.
		p.persistFlags(ctx, think.CassandraFlags)

		if think.IsContextSufficient {
			rc.AddReasoning(think.Reasoning)
			break
		}

		curated, err := p.curate(ctx, think.InformationRequest)
		if err != nil {
			emit(doneEvent())
			return FallbackMessage, err
		}
		p.persistInsights(ctx, curated.InsightsToStore)
		if !curated.FreshData.Empty() {
			if err := store.ApplyFreshData(ctx, p.store, p.userID, curated.FreshData); err != nil {
				p.logger.Warn("apply fresh data failed", zap.Error(err))
			}
		}

		rc.AddResults(p.engine.Retrieve(ctx, curated.QueriesToExecute))
		rc.AddReasoning(think.Reasoning)
	}

	emit(statusEvent(PhaseGenerating, "Putting it into words..."))
	var response string
	var err error
	if events != nil {
		response, err = p.generateStream(ctx, message, rc, emit)
	} else {
		response, err = p.generate(ctx, message, rc)
	}
	if err != nil {
		emit(doneEvent())
		return FallbackMessage, err
	}

	emit(statusEvent(PhasePersisting, "Making a note of this..."))
	persistErr := p.persistInteraction(ctx, message, summary, tags, queryVector, response, rc)
	emit(doneEvent())
	if persistErr != nil {
		return response, fmt.Errorf("persist interaction: %w", persistErr)
	}
	return response, nil
}

// think asks the reasoning role whether the accumulated context suffices.
// Malformed output degrades to "sufficient", ending the loop early.
func (p *Pipeline) think(ctx context.Context, message string, rc *ReasoningContext) (thinkerOutput, error) {
	req := llm.NewRequest(
		llm.SystemMessage(thinkerPrompt),
		llm.SystemMessage("Context so far: "+rc.Payload()),
		llm.UserMessage("Original user message: "+message),
	).WithFormat(llm.NewJSONSchemaFormat("thinker", thinkerSchema)).WithTemperature(0)

	var out thinkerOutput
	if err := p.llm.Structured(ctx, req, &out); err != nil {
		if llm.IsMalformed(err) {
			p.logger.Warn("thinker output malformed", zap.Error(err))
			return thinkerOutput{IsContextSufficient: true}, nil
		}
		return thinkerOutput{}, err
	}
	return out, nil
}

// curate translates an information request into retrieval queries plus
// anything worth storing on the spot. Malformed output degrades to nothing.
func (p *Pipeline) curate(ctx context.Context, request string) (curatorOutput, error) {
	req := llm.NewRequest(
		llm.SystemMessage(curatorPrompt),
		llm.UserMessage(request),
	).WithFormat(llm.NewJSONSchemaFormat("curator", curatorSchema)).WithTemperature(0)

	var out curatorOutput
	if err := p.llm.Structured(ctx, req, &out); err != nil {
		if llm.IsMalformed(err) {
			p.logger.Warn("curator output malformed", zap.Error(err))
			return curatorOutput{}, nil
		}
		return curatorOutput{}, err
	}
	return out, nil
}

func (p *Pipeline) generate(ctx context.Context, message string, rc *ReasoningContext) (string, error) {
	req := llm.NewRequest(p.generatorMessages(message, rc)...).
		WithFormat(llm.NewJSONSchemaFormat("generator", generatorSchema)).
		WithTemperature(0.7)

	var out generatorOutput
	if err := p.llm.Structured(ctx, req, &out); err != nil {
		if llm.IsMalformed(err) {
			p.logger.Warn("generator output malformed", zap.Error(err))
			return FallbackMessage, nil
		}
		return "", err
	}
	if out.NeedsCurator {
		p.logger.Info("generator raised needs_curator")
	}
	if out.ResponseText == "" {
		return FallbackMessage, nil
	}
	return out.ResponseText, nil
}

// generateStream drives the segmenter over a live token stream, emitting
// text and marker events, and returns the full response text.
func (p *Pipeline) generateStream(ctx context.Context, message string, rc *ReasoningContext, emit func(Event)) (string, error) {
	req := llm.NewRequest(p.generatorMessages(message, rc)...).WithTemperature(0.7)

	chunks := make(chan string, 16)
	errc := make(chan error, 1)
	go func() {
		_, err := p.llm.Stream(ctx, req, chunks)
		close(chunks)
		errc <- err
	}()

	seg := segment.New()
	var response string
	for delta := range chunks {
		response += delta
		for _, ev := range seg.Push(delta) {
			emit(segmentEvent(ev))
		}
	}
	for _, ev := range seg.Flush() {
		emit(segmentEvent(ev))
	}
	if err := <-errc; err != nil {
		return "", err
	}
	return response, nil
}

func segmentEvent(ev segment.Event) Event {
	if ev.Type == segment.Marker {
		return markerEvent(ev.Content)
	}
	return textEvent(ev.Content)
}

func (p *Pipeline) generatorMessages(message string, rc *ReasoningContext) []llm.ChatMessage {
	return []llm.ChatMessage{
		llm.SystemMessage(generatorPrompt),
		llm.SystemMessage("Reasoning context: " + rc.Payload()),
		llm.SystemMessage("Current time is " + p.now().UTC().Format(time.RFC3339)),
		llm.UserMessage("Original user message: " + message),
	}
}

func (p *Pipeline) persistFlags(ctx context.Context, flags []string) {
	_, err := p.store.Insert(ctx, store.CassandraFlags, store.Document{
		"user_id": p.userID,
		"flags":   flags,
	})
	if err != nil {
		p.logger.Warn("persist flags failed", zap.Error(err))
	}
}

func (p *Pipeline) persistInsights(ctx context.Context, insights []string) {
	for _, insight := range insights {
		_, err := p.store.Insert(ctx, store.Insights, store.Document{
			"user_id": p.userID,
			"insight": insight,
		})
		if err != nil {
			p.logger.Warn("persist insight failed", zap.Error(err))
		}
	}
}

// embed resolves an embedding, degrading to an empty vector on failure so a
// missing embedding endpoint never aborts a turn.
func (p *Pipeline) embed(ctx context.Context, text string) []float64 {
	if text == "" {
		return []float64{}
	}
	vec, err := p.llm.Embed(ctx, text)
	if err != nil {
		p.logger.Warn("embedding failed", zap.Error(err))
		return []float64{}
	}
	return vec
}

// persistInteraction stores the full exchange: the user message, the
// response with its own summary and tags, the reasoning context as an
// analysis record, a conversation record for the background shards, and an
// interaction document cross-linking them.
func (p *Pipeline) persistInteraction(ctx context.Context, message, summary string, tags []string, queryVector []float64, response string, rc *ReasoningContext) error {
	respOut, err := p.summarize(ctx, response, false)
	if err != nil {
		// Summarizing our own response is best-effort at this point.
		p.logger.Warn("response summarization failed", zap.Error(err))
		respOut = summarizerOutput{}
	}
	respVector := p.embed(ctx, response)

	messageID := uuid.NewString()
	responseID := uuid.NewString()
	analysisID := uuid.NewString()
	allTags := unionTags(tags, respOut.Tags)

	docs := []struct {
		collection string
		doc        store.Document
	}{
		{store.Messages, store.Document{
			"_id": messageID, "user_id": p.userID,
			"message": message, "summary": summary, "tags": tags,
			"embedding": queryVector,
		}},
		{store.Responses, store.Document{
			"_id": responseID, "user_id": p.userID,
			"message": response, "summary": respOut.Summary, "tags": respOut.Tags,
			"embedding": respVector,
		}},
		{store.Analyses, func() store.Document {
			d := rc.Document()
			d["_id"] = analysisID
			d["user_id"] = p.userID
			return d
		}()},
		{store.Conversations, store.Document{
			"user_id": p.userID,
			"message": message, "summary": summary, "tags": allTags,
			"entities": tags,
		}},
		{store.Interactions, store.Document{
			"user_id":                p.userID,
			"tags":                   allTags,
			"embedding":              queryVector,
			"user_message_id":        messageID,
			"agent_response_id":      responseID,
			"analysis_id":            analysisID,
			"user_message_summary":   summary,
			"agent_response_summary": respOut.Summary,
		}},
	}

	var firstErr error
	for _, d := range docs {
		if _, err := p.store.Insert(ctx, d.collection, d.doc); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("insert %s: %w", d.collection, err)
		}
	}
	return firstErr
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
