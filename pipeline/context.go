// Package pipeline runs the per-turn reasoning loop: summarize the incoming
// message, retrieve context in up to a fixed number of iterations, generate
// an answer, and persist the whole exchange.
//
// Information Hiding: the loop bookkeeping (iteration budget, chunking
// threshold, prompt wiring) is private. Callers hand in a message and get a
// response string or a stream of typed events.
package pipeline

import (
	"encoding/json"
	"sort"

	"github.com/richinex/carlos/store"
)

// ReasoningContext is the state accumulated across a turn's reasoning loop.
// Search results and reasoning fragments are append-only; each iteration
// sees everything appended by the previous ones. The whole struct is
// persisted verbatim as the turn's analysis record.
type ReasoningContext struct {
	Summary       string           `json:"summary"`
	Tags          []string         `json:"tags"`
	SearchResults []store.Document `json:"search_results"`
	Reasoning     []string         `json:"reasoning"`
}

// NewReasoningContext creates a context seeded with the summarizer output.
func NewReasoningContext(summary string, tags []string) *ReasoningContext {
	return &ReasoningContext{
		Summary:       summary,
		Tags:          tags,
		SearchResults: []store.Document{},
		Reasoning:     []string{},
	}
}

// AddResults appends retrieval results, grouped by purpose in sorted order
// so the append sequence is deterministic.
func (rc *ReasoningContext) AddResults(results map[string][]store.Document) {
	purposes := make([]string, 0, len(results))
	for purpose := range results {
		purposes = append(purposes, purpose)
	}
	sort.Strings(purposes)
	for _, purpose := range purposes {
		rc.SearchResults = append(rc.SearchResults, results[purpose]...)
	}
}

// AddReasoning appends one reasoning-trace fragment.
func (rc *ReasoningContext) AddReasoning(fragment string) {
	if fragment != "" {
		rc.Reasoning = append(rc.Reasoning, fragment)
	}
}

// Payload renders the context as JSON for inclusion in a prompt.
func (rc *ReasoningContext) Payload() string {
	b, err := json.Marshal(rc)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Document returns the context as a storable analysis record.
func (rc *ReasoningContext) Document() store.Document {
	return store.Document{
		"summary":        rc.Summary,
		"tags":           rc.Tags,
		"search_results": rc.SearchResults,
		"reasoning":      rc.Reasoning,
	}
}
