// Package store defines the five-operation storage adapter contract the
// decision engine consumes, and the errors adapters wrap their failures in.
package store

import (
	"context"
	"fmt"

	"github.com/relguard/rebac/pkg/model"
)

// Filter selects tuples by any subset of subject / relation / object /
// condition. A nil field means wildcard on that slot. ConditionSet
// distinguishes "condition absent from filter" (wildcard) from "condition
// present with value nil" (condition-free tuples only) from "condition
// present with a value" (exact match).
type Filter struct {
	Subject       *model.SubjectRef
	Relation      *model.Relation
	Object        *model.Object
	ConditionSet  bool
	Condition     *model.Condition
}

// DeleteFilter selects tuples for deletion. OnWhat, when set, matches
// either the object slot or the subject slot (so removing a resource also
// cleans up hierarchy back-references where that resource appears as a
// subject in a parent-of tuple).
type DeleteFilter struct {
	Who    *model.SubjectRef
	Was    *model.Relation
	OnWhat *model.Object
}

// Empty reports whether all three slots are unset — callers (and the
// engine) must refuse to translate an empty DeleteFilter into a delete-all.
func (f DeleteFilter) Empty() bool {
	return f.Who == nil && f.Was == nil && f.OnWhat == nil
}

// FindSubjectsOptions narrows FindSubjects to a subject type.
type FindSubjectsOptions struct {
	SubjectType string
}

// FindObjectsOptions narrows FindObjects to an object type.
type FindObjectsOptions struct {
	ObjectType string
}

// Adapter is the storage contract the decision engine consumes. All
// operations are async (context-bound) suspension points; the engine makes
// no assumption about transactionality beyond per-call atomicity, and
// issues no ordering requirement across concurrent invocations.
type Adapter interface {
	// Write stores tuples and returns them with adapter-assigned ids, in
	// the same order as the input.
	Write(ctx context.Context, tuples []model.Tuple) ([]model.Tuple, error)

	// Delete removes tuples matching filter and returns the count deleted.
	// An empty filter MUST delete nothing and log a warning rather than
	// silently deleting everything.
	Delete(ctx context.Context, filter DeleteFilter) (int, error)

	// FindTuples returns tuples matching every set field of partial.
	FindTuples(ctx context.Context, partial Filter) ([]model.Tuple, error)

	// FindSubjects returns the distinct subjects related to object by
	// relation.
	FindSubjects(ctx context.Context, object model.Object, relation model.Relation, opts FindSubjectsOptions) ([]model.SubjectRef, error)

	// FindObjects returns the distinct objects subject is related to by
	// relation.
	FindObjects(ctx context.Context, subject model.SubjectRef, relation model.Relation, opts FindObjectsOptions) ([]model.Object, error)
}

// StorageError wraps an adapter-specific failure so callers can use
// errors.Is/errors.As to reach the underlying cause while still being able
// to identify "this came from storage" generically.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// Wrap builds a StorageError, or returns nil if cause is nil.
func Wrap(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StorageError{Op: op, Cause: cause}
}
