// Typed predicate model.
//
// The source system passed raw JSON filter objects straight to the database.
// Here a predicate is a typed condition per field, so the retrieval engine's
// enum expansion and ownership injection operate on an enforceable shape and
// each backend translates it to its own query language.

package store

import "time"

// Condition constrains one field. Exactly one of the members is meaningful;
// constructors below keep that invariant.
type Condition struct {
	Eq     any
	In     []string
	Exists *bool
	After  *time.Time
	Nested Predicate
}

// Predicate maps field names (dotted paths allowed) to conditions.
// An empty predicate matches everything.
type Predicate map[string]Condition

// Eq matches a field equal to v. Against an array field it matches
// membership, mirroring document-database equality semantics.
func Eq(v any) Condition {
	return Condition{Eq: v}
}

// In matches a field equal to (or, for arrays, intersecting) any of vals.
func In(vals ...string) Condition {
	return Condition{In: vals}
}

// Exists matches on field presence.
func Exists(present bool) Condition {
	return Condition{Exists: &present}
}

// After matches timestamp fields at or past t.
func After(t time.Time) Condition {
	return Condition{After: &t}
}

// Nested matches a sub-document against p.
func Nested(p Predicate) Condition {
	return Condition{Nested: p}
}

// Has reports whether the predicate already constrains field.
func (p Predicate) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// Clone returns a shallow copy; conditions are immutable by convention.
func (p Predicate) Clone() Predicate {
	out := make(Predicate, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// seed extracts the equality conditions as a document, used to create the
// initial document on an upserting update that matched nothing.
func (p Predicate) seed() Document {
	doc := Document{}
	for field, cond := range p {
		if cond.Eq != nil {
			doc[field] = cond.Eq
		}
	}
	return doc
}
