// Curator fresh-data application.
//
// The curator's structured output can carry new information to persist
// alongside its retrieval queries: entities, events, nested user-state
// updates, and flat key/value facts. Entities and events become stamped
// inserts; everything else merges into the single user_state document.

package store

import (
	"context"
	"fmt"
	"time"
)

// KeyValueFact is one flat fact destined for the user state document.
type KeyValueFact struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// FreshData is the storable portion of a curator response.
type FreshData struct {
	Entities         []map[string]any `json:"entities"`
	Events           []map[string]any `json:"events"`
	UserStateUpdates map[string]any   `json:"user_state_updates"`
	KeyValueFacts    []KeyValueFact   `json:"key_value_facts"`
}

// Empty reports whether there is nothing to store.
func (f FreshData) Empty() bool {
	return len(f.Entities) == 0 && len(f.Events) == 0 &&
		len(f.UserStateUpdates) == 0 && len(f.KeyValueFacts) == 0
}

// ApplyFreshData persists fresh curator output for userID.
func ApplyFreshData(ctx context.Context, s Store, userID string, fresh FreshData) error {
	now := time.Now().UTC()

	if len(fresh.Entities) > 0 {
		if _, err := s.InsertMany(ctx, Entities, ownDocs(fresh.Entities, userID, now)); err != nil {
			return fmt.Errorf("store entities: %w", err)
		}
	}
	if len(fresh.Events) > 0 {
		if _, err := s.InsertMany(ctx, Events, ownDocs(fresh.Events, userID, now)); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
	}

	change := stateChange(fresh, now)
	if len(change.Set) == 0 && len(change.AddToSet) == 0 {
		return nil
	}
	pred := Predicate{"user_id": Eq(userID)}
	if err := s.Update(ctx, UserState, pred, change); err != nil {
		return fmt.Errorf("update user state: %w", err)
	}
	return nil
}

// stateChange folds user-state updates and key/value facts into one Change.
// context_flags appends via set union; nested objects (active_projects,
// preferences) merge per sub-key instead of replacing the whole object.
func stateChange(fresh FreshData, now time.Time) Change {
	change := Change{Set: map[string]any{}, AddToSet: map[string][]any{}, Upsert: true}

	for key, value := range fresh.UserStateUpdates {
		switch {
		case key == "context_flags":
			if list, ok := asList(value); ok {
				change.AddToSet["context_flags"] = list
			}
		case key == "active_projects" || key == "preferences":
			if sub, ok := asMap(value); ok {
				for subKey, subValue := range sub {
					change.Set[key+"."+subKey] = subValue
				}
			} else {
				change.Set[key] = value
			}
		default:
			change.Set[key] = value
		}
	}

	for _, fact := range fresh.KeyValueFacts {
		if fact.Key != "" {
			change.Set[fact.Key] = fact.Value
		}
	}

	if len(change.Set) > 0 || len(change.AddToSet) > 0 {
		change.Set["last_updated"] = now
	}
	return change
}

func ownDocs(items []map[string]any, userID string, now time.Time) []Document {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		doc := make(Document, len(item)+2)
		for k, v := range item {
			doc[k] = v
		}
		doc["user_id"] = userID
		doc["timestamp"] = now
		docs = append(docs, doc)
	}
	return docs
}
