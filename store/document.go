// Document representation and field coercion helpers.
//
// Documents round-trip through JSON (SQLite backend) or BSON (Mongo
// backend), so list and number fields come back as []any / float64. The
// helpers coerce without callers caring which backend produced the value.

package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is one stored record.
type Document map[string]any

// ID returns the document identifier, if present.
func (d Document) ID() string {
	return d.Str("_id")
}

// UserID returns the owning user, if present.
func (d Document) UserID() string {
	return d.Str("user_id")
}

// Str returns the string value of key, or "".
func (d Document) Str(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// Float returns the numeric value of key, or 0.
func (d Document) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Strings returns the string-slice value of key.
func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case primitive.A:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Floats returns the float-slice value of key (embeddings).
func (d Document) Floats(key string) []float64 {
	coerce := func(items []any) []float64 {
		out := make([]float64, 0, len(items))
		for _, item := range items {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case float32:
				out = append(out, float64(n))
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	}
	switch v := d[key].(type) {
	case []float64:
		return v
	case []any:
		return coerce(v)
	case primitive.A:
		return coerce(v)
	}
	return nil
}

// Time returns the time value of key.
func (d Document) Time(key string) (time.Time, bool) {
	return coerceTime(d[key])
}

// Timestamp returns the document timestamp, zero if absent.
func (d Document) Timestamp() time.Time {
	t, _ := d.Time("timestamp")
	return t
}

func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time().UTC(), true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// lookup resolves a dotted path against the document. The second return
// reports whether the path exists at all.
func (d Document) lookup(path string) (any, bool) {
	var current any = map[string]any(d)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1

		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	case primitive.M:
		return m, true
	}
	return nil, false
}
