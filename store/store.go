// Package store provides the persistent document store.
//
// Information Hiding:
// - Backend choice (MongoDB or SQLite) hidden behind the Store interface
// - Predicate translation to the backend query language encapsulated
// - Identifier and timestamp stamping handled on insert
//
// The store is append-mostly and must tolerate concurrent writers. The one
// read-modify-write is the active-thought status transition, which every
// backend implements as a conditional update keyed on status=ready.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Collection names known to the store. A query naming anything else fails
// with ErrUnknownCollection.
const (
	Conversations  = "conversations"
	Messages       = "messages"
	Responses      = "responses"
	Analyses       = "analyses"
	Interactions   = "interactions"
	Events         = "events"
	Entities       = "entities"
	Insights       = "insights"
	UserState      = "user_state"
	ActiveThoughts = "active_thoughts"
	CassandraFlags = "cassandra_flags"
)

// ErrUnknownCollection reports a query against a collection the store
// does not know about.
var ErrUnknownCollection = errors.New("unknown collection")

// ActiveThought status values. Claiming transitions only ready -> processed.
// Queued marks a delivery candidate already handed to the proactive queue, so
// the shards never pick it up again.
const (
	StatusReady     = "ready"
	StatusQueued    = "queued"
	StatusProcessed = "processed"
)

var knownCollections = map[string]bool{
	Conversations:  true,
	Messages:       true,
	Responses:      true,
	Analyses:       true,
	Interactions:   true,
	Events:         true,
	Entities:       true,
	Insights:       true,
	UserState:      true,
	ActiveThoughts: true,
	CassandraFlags: true,
}

func checkCollection(name string) error {
	if !knownCollections[name] {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return nil
}

// Change describes a document mutation: plain field sets plus set-union
// appends to array fields. With Upsert, a non-matching update inserts a
// fresh document seeded from the predicate's equality conditions.
type Change struct {
	Set      map[string]any
	AddToSet map[string][]any
	Upsert   bool
}

// Store is the persistent document store consumed by the pipeline, the
// retrieval engine, and the background shards.
type Store interface {
	// Insert stores one document and returns its id. Missing _id and
	// timestamp fields are stamped.
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	// InsertMany stores several documents.
	InsertMany(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Find returns documents matching pred, newest first, truncated to
	// limit (no truncation when limit <= 0).
	Find(ctx context.Context, collection string, pred Predicate, limit int) ([]Document, error)

	// Update applies change to every document matching pred.
	Update(ctx context.Context, collection string, pred Predicate, change Change) error

	// Count returns the number of documents matching pred.
	Count(ctx context.Context, collection string, pred Predicate) (int64, error)

	// ClaimThought transitions an active thought from ready to processed.
	// Returns true iff this caller won the transition; a thought is
	// consumed by at most one downstream consumer.
	ClaimThought(ctx context.Context, id string) (bool, error)

	// Reset drops all stored documents for the given user.
	Reset(ctx context.Context, userID string) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
