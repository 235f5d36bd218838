package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/richinex/carlos/llm"
	"github.com/richinex/carlos/proactive"
	"github.com/richinex/carlos/retrieval"
	"github.com/richinex/carlos/store"
)

// fakeProvider scripts Reasoning Service answers per role, dispatching on
// the system prompt of each request.
type fakeProvider struct {
	mu           sync.Mutex
	thinkerCalls int
	chatErr      error

	summarizerFn func(text string) string
	thinkerFn    func(call int, contextPayload string) string
	curatorFn    func(request string) string
	generatorFn  func(contextPayload string) string
	streamDeltas []string
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return llm.Response{}, f.chatErr
	}

	system := req.Messages[0].Content
	switch system {
	case summarizerPrompt:
		text := strings.TrimPrefix(req.Messages[1].Content, "Message to summarize: ")
		return llm.Response{Content: f.summarizerFn(text)}, nil
	case thinkerPrompt:
		f.thinkerCalls++
		payload := strings.TrimPrefix(req.Messages[1].Content, "Context so far: ")
		return llm.Response{Content: f.thinkerFn(f.thinkerCalls, payload)}, nil
	case curatorPrompt:
		return llm.Response{Content: f.curatorFn(req.Messages[1].Content)}, nil
	case generatorPrompt:
		payload := strings.TrimPrefix(req.Messages[1].Content, "Reasoning context: ")
		return llm.Response{Content: f.generatorFn(payload)}, nil
	}
	return llm.Response{}, fmt.Errorf("unexpected system prompt: %.40s", system)
}

func (f *fakeProvider) StreamChat(ctx context.Context, req llm.Request, chunks chan<- string) (*llm.TokenUsage, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	for _, delta := range f.streamDeltas {
		chunks <- delta
	}
	return &llm.TokenUsage{}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func defaultFake() *fakeProvider {
	return &fakeProvider{
		summarizerFn: func(text string) string {
			return `{"summary": "a message", "tags": ["general"]}`
		},
		thinkerFn: func(call int, payload string) string {
			return `{"is_context_sufficient": true, "reasoning": "plenty of context"}`
		},
		curatorFn: func(request string) string {
			return `{"queries_to_execute": [], "insights_to_store": []}`
		},
		generatorFn: func(payload string) string {
			return `{"response_text": "hello there", "needs_curator": false}`
		},
		streamDeltas: []string{"hello ", "there"},
	}
}

func newTestPipeline(t *testing.T, fake *fakeProvider, user string) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close(context.Background()) })

	logger := zap.NewNop()
	engine := retrieval.NewEngine(st, user, logger)
	queue := proactive.NewQueue(st)
	return New(llm.NewClient(fake), st, engine, queue, user, logger), st
}

func TestRespondHappyPath(t *testing.T) {
	p, _ := newTestPipeline(t, defaultFake(), "ana")
	got, err := p.Respond(context.Background(), "hi")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got != "hello there" {
		t.Errorf("response = %q, want %q", got, "hello there")
	}
}

func TestLoopBoundedWhenNeverSufficient(t *testing.T) {
	fake := defaultFake()
	fake.thinkerFn = func(call int, payload string) string {
		return `{"is_context_sufficient": false, "information_request": "more", "reasoning": "still unsure"}`
	}
	p, _ := newTestPipeline(t, fake, "ana")

	if _, err := p.Respond(context.Background(), "hi"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if fake.thinkerCalls != DefaultMaxLoops {
		t.Errorf("thinker calls = %d, want %d", fake.thinkerCalls, DefaultMaxLoops)
	}
}

func TestRespondAbortsOnServiceFailure(t *testing.T) {
	fake := defaultFake()
	fake.chatErr = llm.TransientError(errors.New("connection refused"))
	p, _ := newTestPipeline(t, fake, "ana")

	got, err := p.Respond(context.Background(), "hi")
	if err == nil {
		t.Fatal("want error on service failure")
	}
	if !llm.IsTransient(err) {
		t.Errorf("error %v should be transient", err)
	}
	if got != FallbackMessage {
		t.Errorf("response = %q, want fallback", got)
	}
}

func TestMalformedThinkerDegradesToSufficient(t *testing.T) {
	fake := defaultFake()
	fake.thinkerFn = func(call int, payload string) string {
		return "I refuse to answer in JSON"
	}
	p, _ := newTestPipeline(t, fake, "ana")

	got, err := p.Respond(context.Background(), "hi")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got != "hello there" {
		t.Errorf("response = %q, want generated answer despite malformed thinker", got)
	}
	if fake.thinkerCalls != 1 {
		t.Errorf("thinker calls = %d, want 1", fake.thinkerCalls)
	}
}

func TestCassandraFlagsPersistedEveryIteration(t *testing.T) {
	fake := defaultFake()
	fake.thinkerFn = func(call int, payload string) string {
		if call < 3 {
			return `{"is_context_sufficient": false, "information_request": "more", "reasoning": "digging", "cassandra_flags": ["assumes deadline is fixed"]}`
		}
		return `{"is_context_sufficient": true, "reasoning": "done"}`
	}
	p, st := newTestPipeline(t, fake, "ana")

	if _, err := p.Respond(context.Background(), "hi"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	n, err := st.Count(context.Background(), store.CassandraFlags, store.Predicate{"user_id": store.Eq("ana")})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("flag documents = %d, want 3 (one per iteration)", n)
	}
}

func TestProactiveShortCircuit(t *testing.T) {
	fake := defaultFake()
	p, _ := newTestPipeline(t, fake, "ana")

	err := p.queue.Enqueue(context.Background(), proactive.Message{
		UserID:      "ana",
		ShardType:   proactive.ShardThinker,
		MessageType: proactive.TypeCyclicalInsight,
		Content:     "your training plan and your travel overlap next week",
		Urgency:     0.9,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := p.Respond(context.Background(), "hi")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(got, "your training plan and your travel overlap") {
		t.Errorf("response = %q, want injected proactive message", got)
	}
	if fake.thinkerCalls != 0 {
		t.Error("short-circuited turn should not reach the thinker")
	}
}

func TestStreamEmitsSegmentedEventsAndDone(t *testing.T) {
	fake := defaultFake()
	fake.streamDeltas = []string{"hi [", "excited] there"}
	p, _ := newTestPipeline(t, fake, "ana")

	events := make(chan Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- p.Stream(context.Background(), "hello", events)
		close(events)
	}()

	var collected []Event
	for ev := range events {
		collected = append(collected, ev)
	}
	if err := <-done; err != nil {
		t.Fatalf("stream: %v", err)
	}

	var text strings.Builder
	var markers []string
	sawDone := false
	for i, ev := range collected {
		switch ev.Type {
		case EventText:
			text.WriteString(ev.Content)
		case EventMarker:
			markers = append(markers, ev.Content)
		case EventDone:
			if i != len(collected)-1 {
				t.Error("done must be the terminal event")
			}
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("stream missing terminal done event")
	}
	if got := text.String(); got != "hi  there" {
		t.Errorf("text = %q, want %q", got, "hi  there")
	}
	if len(markers) != 1 || markers[0] != "excited" {
		t.Errorf("markers = %v, want [excited]", markers)
	}
}

func TestPersistFailureSurfacedAfterResponse(t *testing.T) {
	fake := defaultFake()
	p, st := newTestPipeline(t, fake, "ana")
	// Closing the store makes every subsequent insert fail.
	st.Close(context.Background())

	got, err := p.Respond(context.Background(), "hi")
	if err == nil {
		t.Fatal("want surfaced persist error")
	}
	if got != "hello there" {
		t.Errorf("response = %q, want generated answer despite persist failure", got)
	}
}

func TestChunkingReassembles(t *testing.T) {
	word := "memory"
	var words []string
	for len(strings.Join(words, " ")) < 9000 {
		words = append(words, word)
	}
	message := strings.Join(words, " ")

	chunks := splitChunks(message, 4000)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if len(c) > 4000 {
			t.Errorf("chunk %d length %d exceeds threshold", i, len(c))
		}
	}
	if got := strings.Join(chunks, " "); got != message {
		t.Error("joined chunks do not reproduce the original token sequence")
	}
}

func TestCodenameRecallEndToEnd(t *testing.T) {
	fake := defaultFake()
	fake.summarizerFn = func(text string) string {
		if strings.Contains(text, "Blue Falcon") {
			return `{"summary": "The user's codename is Blue Falcon.", "tags": ["codename"]}`
		}
		if strings.Contains(text, "codename") {
			return `{"summary": "User asks for their codename.", "tags": ["codename"]}`
		}
		return `{"summary": "small talk", "tags": ["chitchat"]}`
	}
	fake.thinkerFn = func(call int, payload string) string {
		if strings.Contains(payload, "Blue Falcon") {
			return `{"is_context_sufficient": true, "reasoning": "found the codename record"}`
		}
		if strings.Contains(payload, "codename") {
			return `{"is_context_sufficient": false, "information_request": "look up records tagged codename", "reasoning": "need the stored codename"}`
		}
		return `{"is_context_sufficient": true, "reasoning": "nothing to look up"}`
	}
	fake.curatorFn = func(request string) string {
		return `{"queries_to_execute": [{"purpose": "codename_lookup", "collection": "conversations", "query": {"tags": "codename"}, "priority": 1, "limit": 10}]}`
	}
	fake.generatorFn = func(payload string) string {
		if strings.Contains(payload, "Blue Falcon") {
			return `{"response_text": "Your codename is Blue Falcon."}`
		}
		return `{"response_text": "Understood."}`
	}

	p, _ := newTestPipeline(t, fake, "ana")
	ctx := context.Background()

	if _, err := p.Respond(ctx, "my codename is Blue Falcon"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := p.Respond(ctx, fmt.Sprintf("unrelated message number %d about the weather", i)); err != nil {
			t.Fatalf("filler turn %d: %v", i, err)
		}
	}

	got, err := p.Respond(ctx, "what was my codename?")
	if err != nil {
		t.Fatalf("recall turn: %v", err)
	}
	if !strings.Contains(got, "Blue Falcon") {
		t.Errorf("response = %q, want it to contain the recalled codename", got)
	}
}
