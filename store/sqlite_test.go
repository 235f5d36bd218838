package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestInsertAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Conversations, Document{
		"user_id":       "alice",
		"user_input":    "hello",
		"semantic_tags": []string{"greeting"},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	docs, err := s.Find(ctx, Conversations, Predicate{"user_id": Eq("alice")}, 10)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Str("user_input") != "hello" {
		t.Errorf("expected 'hello', got %q", docs[0].Str("user_input"))
	}
	if docs[0].Timestamp().IsZero() {
		t.Error("expected stamped timestamp")
	}
}

func TestFindUnknownCollection(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Find(context.Background(), "nonsense", Predicate{}, 10)
	if err == nil {
		t.Fatal("expected error for unknown collection")
	}
}

func TestFindNewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, Events, Document{
			"user_id":   "alice",
			"n":         i,
			"timestamp": base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	docs, err := s.Find(ctx, Events, Predicate{"user_id": Eq("alice")}, 2)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Float("n") != 4 || docs[1].Float("n") != 3 {
		t.Errorf("expected newest first, got n=%v then n=%v", docs[0]["n"], docs[1]["n"])
	}
}

func TestMatchTagMembership(t *testing.T) {
	doc := Document{"semantic_tags": []any{"travel", "paris"}}

	if !Match(doc, Predicate{"semantic_tags": In("paris", "rome")}) {
		t.Error("expected tag intersection to match")
	}
	if Match(doc, Predicate{"semantic_tags": In("rome")}) {
		t.Error("expected disjoint tags not to match")
	}
	if !Match(doc, Predicate{"semantic_tags": Eq("travel")}) {
		t.Error("expected array equality to match membership")
	}
}

func TestMatchUncomparableValues(t *testing.T) {
	// Both sides holding an uncomparable dynamic type must not panic;
	// predicates can come straight from model output.
	doc := Document{"route": []any{[]any{"a", "b"}}}

	if !Match(doc, Predicate{"route": Eq([]any{"a", "b"})}) {
		t.Error("expected deep equality on nested array element")
	}
	if Match(doc, Predicate{"route": Eq([]any{"a", "c"})}) {
		t.Error("expected differing nested array not to match")
	}
	if Match(Document{"route": map[string]any{"x": 1}}, Predicate{"route": Eq(map[string]any{"x": 2})}) {
		t.Error("expected differing maps not to match")
	}
}

func TestMatchExistsOnSubPath(t *testing.T) {
	doc := Document{"travel_history": map[string]any{"paris": map[string]any{"year": 2024}}}

	if !Match(doc, Predicate{"travel_history.paris": Exists(true)}) {
		t.Error("expected existing sub-path to match")
	}
	if Match(doc, Predicate{"travel_history.rome": Exists(true)}) {
		t.Error("expected missing sub-path not to match")
	}
	if !Match(doc, Predicate{"travel_history.rome": Exists(false)}) {
		t.Error("expected negative existence to match")
	}
}

func TestMatchTimestampBound(t *testing.T) {
	cutoff := time.Now().UTC().Add(-time.Hour)
	recent := Document{"timestamp": time.Now().UTC()}
	old := Document{"timestamp": cutoff.Add(-time.Hour)}

	if !Match(recent, Predicate{"timestamp": After(cutoff)}) {
		t.Error("expected recent document to match")
	}
	if Match(old, Predicate{"timestamp": After(cutoff)}) {
		t.Error("expected old document not to match")
	}
}

func TestUpdateUpsertCreatesDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pred := Predicate{"user_id": Eq("alice")}
	err := s.Update(ctx, UserState, pred, Change{
		Set:    map[string]any{"codename": "Blue Falcon"},
		Upsert: true,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	docs, err := s.Find(ctx, UserState, pred, 1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected upserted document, got %d", len(docs))
	}
	if docs[0].Str("codename") != "Blue Falcon" {
		t.Errorf("expected codename set, got %q", docs[0].Str("codename"))
	}
}

func TestUpdateAddToSetDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pred := Predicate{"user_id": Eq("alice")}
	for i := 0; i < 2; i++ {
		err := s.Update(ctx, UserState, pred, Change{
			AddToSet: map[string][]any{"context_flags": {"travel_planning", "budgeting"}},
			Upsert:   true,
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	docs, err := s.Find(ctx, UserState, pred, 1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	flags := docs[0].Strings("context_flags")
	if len(flags) != 2 {
		t.Errorf("expected 2 deduplicated flags, got %v", flags)
	}
}

func TestClaimThoughtExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, ActiveThoughts, Document{
		"user_id": "alice",
		"status":  StatusReady,
		"content": "pattern detected",
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	won, err := s.ClaimThought(ctx, id)
	if err != nil {
		t.Fatalf("ClaimThought failed: %v", err)
	}
	if !won {
		t.Fatal("expected first claim to win")
	}

	won, err = s.ClaimThought(ctx, id)
	if err != nil {
		t.Fatalf("ClaimThought failed: %v", err)
	}
	if won {
		t.Fatal("expected second claim to lose")
	}
}

func TestClaimThoughtConcurrentSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, ActiveThoughts, Document{
		"user_id": "alice",
		"status":  StatusReady,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.ClaimThought(ctx, id)
			if err != nil {
				t.Errorf("ClaimThought failed: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}

func TestApplyFreshData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh := FreshData{
		Entities: []map[string]any{{"name": "Blue Falcon", "kind": "codename"}},
		Events:   []map[string]any{{"type": "milestone", "description": "shipped"}},
		UserStateUpdates: map[string]any{
			"context_flags":   []any{"travel_planning"},
			"active_projects": map[string]any{"atlas": "in_progress"},
			"mood":            "upbeat",
		},
		KeyValueFacts: []KeyValueFact{{Key: "codename", Value: "Blue Falcon"}},
	}

	if err := ApplyFreshData(ctx, s, "alice", fresh); err != nil {
		t.Fatalf("ApplyFreshData failed: %v", err)
	}

	entities, err := s.Find(ctx, Entities, Predicate{"user_id": Eq("alice")}, 10)
	if err != nil {
		t.Fatalf("Find entities failed: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}

	states, err := s.Find(ctx, UserState, Predicate{"user_id": Eq("alice")}, 1)
	if err != nil {
		t.Fatalf("Find user_state failed: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected upserted user state, got %d", len(states))
	}
	state := states[0]
	if state.Str("codename") != "Blue Falcon" {
		t.Errorf("expected key_value_fact applied, got %q", state.Str("codename"))
	}
	if state.Str("mood") != "upbeat" {
		t.Errorf("expected mood set, got %q", state.Str("mood"))
	}
	projects, ok := asMap(state["active_projects"])
	if !ok || projects["atlas"] != "in_progress" {
		t.Errorf("expected nested project merge, got %v", state["active_projects"])
	}
	if flags := state.Strings("context_flags"); len(flags) != 1 || flags[0] != "travel_planning" {
		t.Errorf("unexpected context_flags: %v", flags)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.Insert(ctx, Conversations, Document{"user_id": "alice", "user_input": "hi"})
	_, _ = s.Insert(ctx, Conversations, Document{"user_id": "bob", "user_input": "yo"})

	if err := s.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	alice, _ := s.Find(ctx, Conversations, Predicate{"user_id": Eq("alice")}, 0)
	if len(alice) != 0 {
		t.Errorf("expected alice's documents removed, got %d", len(alice))
	}
	bob, _ := s.Find(ctx, Conversations, Predicate{"user_id": Eq("bob")}, 0)
	if len(bob) != 1 {
		t.Errorf("expected bob's documents kept, got %d", len(bob))
	}
}
