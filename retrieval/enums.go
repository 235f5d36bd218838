// Enumeration expansion table.
//
// The reasoning service is prompted with abstract category keys rather than
// literal stored values ("positive_sentiment" instead of every word the
// summarizer might have tagged). The table below maps each category key to
// the literal synonyms it stands for; predicate expansion rewrites such a
// field to a disjunction over the literals. The table is data, not logic -
// extending a category never touches the expansion code.

package retrieval

// EnumTable maps field name -> category key -> literal values.
type EnumTable map[string]map[string][]string

// DefaultEnums returns the built-in category table.
func DefaultEnums() EnumTable {
	return EnumTable{
		"sentiment": {
			"positive_sentiment": {"positive", "excited", "happy", "satisfied"},
			"negative_sentiment": {"negative", "frustrated", "angry", "disappointed"},
			"neutral_sentiment":  {"neutral", "calm", "indifferent"},
		},
		"event_type": {
			"critical_event":  {"problem", "decision", "urgent"},
			"progress_update": {"milestone", "update", "goal", "achievement"},
			"social_event":    {"meeting", "conversation", "collaboration"},
		},
	}
}

// Expand returns the literal values for (field, key), if the field is an
// enumerated one and the key is known.
func (t EnumTable) Expand(field, key string) ([]string, bool) {
	keys, ok := t[field]
	if !ok {
		return nil, false
	}
	values, ok := keys[key]
	return values, ok
}
