package pipeline

import (
	"encoding/json"

	"github.com/richinex/carlos/retrieval"
	"github.com/richinex/carlos/store"
)

// Structured outputs decoded from the Reasoning Service. Missing or
// malformed fields decode to zero values; the pipeline degrades rather
// than aborting on those.

type summarizerOutput struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

type thinkerOutput struct {
	IsContextSufficient bool     `json:"is_context_sufficient"`
	InformationRequest  string   `json:"information_request"`
	Reasoning           string   `json:"reasoning"`
	CassandraFlags      []string `json:"cassandra_flags"`
}

type curatorOutput struct {
	QueriesToExecute []retrieval.Query `json:"queries_to_execute"`
	InsightsToStore  []string          `json:"insights_to_store"`
	FreshData        store.FreshData   `json:"fresh_data"`
}

type generatorOutput struct {
	ResponseText string `json:"response_text"`
	NeedsCurator bool   `json:"needs_curator"`
}

var summarizerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary", "tags"]
}`)

var thinkerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"is_context_sufficient": {"type": "boolean"},
		"information_request": {"type": "string"},
		"reasoning": {"type": "string"},
		"cassandra_flags": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["is_context_sufficient", "reasoning"]
}`)

var curatorSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"queries_to_execute": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"purpose": {"type": "string"},
					"collection": {"type": "string"},
					"query": {"type": "object"},
					"timeframe": {"type": "string"},
					"priority": {"type": "integer"},
					"limit": {"type": "integer"}
				},
				"required": ["purpose", "collection", "query"]
			}
		},
		"insights_to_store": {"type": "array", "items": {"type": "string"}},
		"fresh_data": {
			"type": "object",
			"properties": {
				"entities": {"type": "array", "items": {"type": "object"}},
				"events": {"type": "array", "items": {"type": "object"}},
				"user_state_updates": {"type": "object"},
				"key_value_facts": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"key": {"type": "string"},
							"value": {}
						},
						"required": ["key", "value"]
					}
				}
			}
		}
	},
	"required": ["queries_to_execute"]
}`)

var generatorSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"response_text": {"type": "string"},
		"needs_curator": {"type": "boolean"}
	},
	"required": ["response_text"]
}`)
