// In-process predicate evaluation, used by the SQLite backend's
// brute-force scan.

package store

import "reflect"

// Match reports whether doc satisfies every condition in pred.
func Match(doc Document, pred Predicate) bool {
	for field, cond := range pred {
		if !matchField(doc, field, cond) {
			return false
		}
	}
	return true
}

func matchField(doc Document, field string, cond Condition) bool {
	value, present := doc.lookup(field)

	if cond.Exists != nil {
		return present == *cond.Exists
	}
	if !present {
		return false
	}

	switch {
	case cond.In != nil:
		return intersects(value, cond.In)
	case cond.After != nil:
		t, ok := coerceTime(value)
		return ok && !t.Before(*cond.After)
	case cond.Nested != nil:
		sub, ok := asMap(value)
		return ok && Match(Document(sub), cond.Nested)
	default:
		return equalOrContains(value, cond.Eq)
	}
}

// equalOrContains implements document-database equality: a scalar compares
// directly, an array matches when it contains the target. DeepEqual rather
// than ==: predicates can carry model-produced values of uncomparable
// dynamic types, which == would panic on.
func equalOrContains(value, target any) bool {
	if list, ok := asList(value); ok {
		for _, item := range list {
			if reflect.DeepEqual(item, target) {
				return true
			}
		}
		return false
	}
	return reflect.DeepEqual(value, target)
}

func intersects(value any, set []string) bool {
	members := map[string]bool{}
	for _, s := range set {
		members[s] = true
	}
	if list, ok := asList(value); ok {
		for _, item := range list {
			if s, ok := item.(string); ok && members[s] {
				return true
			}
		}
		return false
	}
	s, ok := value.(string)
	return ok && members[s]
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
