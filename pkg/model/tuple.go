// Package model holds the canonical, immutable value types the rest of the
// engine operates on: subjects, objects, relations, time conditions, and the
// tuples that tie them together.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Subject identifies an actor, or — when it appears in the subject slot of a
// group or hierarchy tuple — an object acting as a subject (a group, or a
// child resource pointing at its parent).
type Subject struct {
	Type string
	ID   string
}

func (s Subject) String() string {
	return s.Type + ":" + s.ID
}

// Object identifies a resource. ID may carry a field suffix; use Base and
// Field to decompose it against a given separator.
type Object struct {
	Type string
	ID   string
}

func (o Object) String() string {
	return o.Type + ":" + o.ID
}

// Base returns the portion of the id before the last occurrence of sep, and
// true if sep occurs at all. When it doesn't, or sep is empty, Base returns
// the zero Object and false: an id with no separator has no base form.
func (o Object) Base(sep string) (Object, bool) {
	if sep == "" {
		return Object{}, false
	}
	idx := strings.LastIndex(o.ID, sep)
	if idx < 0 {
		return Object{}, false
	}
	return Object{Type: o.Type, ID: o.ID[:idx]}, true
}

// Field returns the substring after the last occurrence of sep, and true if
// sep occurs at all.
func (o Object) Field(sep string) (string, bool) {
	if sep == "" {
		return "", false
	}
	idx := strings.LastIndex(o.ID, sep)
	if idx < 0 {
		return "", false
	}
	return o.ID[idx+len(sep):], true
}

// Relation is a schema-declared relation name. It is just a string; schema
// validity is enforced by the schema package, not by this type.
type Relation string

// Action is a schema-declared capability name checked at runtime.
type Action string

// Condition optionally gates a tuple to a time window. A nil *Condition, or
// one with both fields zero, is always valid.
type Condition struct {
	ValidSince *time.Time
	ValidUntil *time.Time
}

// ValidAt reports whether the condition holds at instant now. validSince is
// inclusive, validUntil is strictly exclusive.
func (c *Condition) ValidAt(now time.Time) bool {
	if c == nil {
		return true
	}
	if c.ValidSince != nil && now.Before(*c.ValidSince) {
		return false
	}
	if c.ValidUntil != nil && !now.Before(*c.ValidUntil) {
		return false
	}
	return true
}

// Equal performs structural comparison, treating a nil condition the same
// as one whose bounds are both nil.
func (c *Condition) Equal(other *Condition) bool {
	a, b := normalizeCondition(c), normalizeCondition(other)
	if (a.ValidSince == nil) != (b.ValidSince == nil) {
		return false
	}
	if a.ValidSince != nil && !a.ValidSince.Equal(*b.ValidSince) {
		return false
	}
	if (a.ValidUntil == nil) != (b.ValidUntil == nil) {
		return false
	}
	if a.ValidUntil != nil && !a.ValidUntil.Equal(*b.ValidUntil) {
		return false
	}
	return true
}

func normalizeCondition(c *Condition) *Condition {
	if c == nil {
		return &Condition{}
	}
	return c
}

// SubjectRef is the polymorphic subject slot of a tuple: either an actor
// Subject, or an Object standing in as a subject (a group, or a child
// pointing at its parent in a hierarchy tuple). Both share the same
// structural capability set {Type, ID}, so the engine only ever needs
// equality and printing.
type SubjectRef struct {
	Type string
	ID   string
}

// AsSubject converts a SubjectRef back into a Subject.
func (r SubjectRef) AsSubject() Subject { return Subject{Type: r.Type, ID: r.ID} }

// AsObject converts a SubjectRef back into an Object.
func (r SubjectRef) AsObject() Object { return Object{Type: r.Type, ID: r.ID} }

func (r SubjectRef) String() string {
	return r.Type + ":" + r.ID
}

// RefOfSubject lifts a Subject into a SubjectRef.
func RefOfSubject(s Subject) SubjectRef { return SubjectRef{Type: s.Type, ID: s.ID} }

// RefOfObject lifts an Object (acting as a subject) into a SubjectRef.
func RefOfObject(o Object) SubjectRef { return SubjectRef{Type: o.Type, ID: o.ID} }

// Tuple is a relationship fact: subject has relation on object, optionally
// gated by a time condition. ID is adapter-assigned and opaque to the
// engine; it is empty for tuples not yet written.
type Tuple struct {
	ID        string
	Subject   SubjectRef
	Relation  Relation
	Object    Object
	Condition *Condition
}

// Key returns the (subject, relation, object) triple that identifies this
// tuple's semantic slot; tuples are a multiset keyed by Key, and writes
// should be treated as idempotent on it.
func (t Tuple) Key() string {
	return fmt.Sprintf("%s#%s@%s", t.Object, t.Relation, t.Subject)
}

// ValidAt reports whether this tuple's condition currently holds.
func (t Tuple) ValidAt(now time.Time) bool {
	return t.Condition.ValidAt(now)
}
