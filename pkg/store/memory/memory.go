// Package memory implements the in-memory reference storage adapter,
// making the decision engine self-contained and testable without any
// external database.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
)

// Adapter is a thread-safe, in-memory implementation of store.Adapter.
type Adapter struct {
	mu      sync.RWMutex
	warn    func(string)
	tuples  map[string]model.Tuple // id -> tuple
	bySubj  map[string][]string    // subject key -> tuple ids
	byObj   map[string][]string    // object key -> tuple ids
}

// New constructs an empty Adapter. warn receives human-readable strings for
// empty-filter deletes; pass nil to discard them silently, though callers
// are expected to route it to their warning sink.
func New(warn func(string)) *Adapter {
	if warn == nil {
		warn = func(string) {}
	}
	return &Adapter{
		warn:   warn,
		tuples: make(map[string]model.Tuple),
		bySubj: make(map[string][]string),
		byObj:  make(map[string][]string),
	}
}

func subjKey(s model.SubjectRef) string { return s.String() }
func objKey(o model.Object) string      { return o.String() }

func (a *Adapter) Write(ctx context.Context, tuples []model.Tuple) ([]model.Tuple, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.Tuple, len(tuples))
	for i, t := range tuples {
		stored := t
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		a.tuples[stored.ID] = stored
		a.bySubj[subjKey(stored.Subject)] = append(a.bySubj[subjKey(stored.Subject)], stored.ID)
		a.byObj[objKey(stored.Object)] = append(a.byObj[objKey(stored.Object)], stored.ID)
		out[i] = stored
	}
	return out, nil
}

func (a *Adapter) Delete(ctx context.Context, filter store.DeleteFilter) (int, error) {
	if filter.Empty() {
		a.warn("delete called with empty filter; refusing to delete anything")
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	deleted := 0
	for id, t := range a.tuples {
		if !matchesDelete(t, filter) {
			continue
		}
		delete(a.tuples, id)
		a.removeFromIndex(a.bySubj, subjKey(t.Subject), id)
		a.removeFromIndex(a.byObj, objKey(t.Object), id)
		deleted++
	}
	return deleted, nil
}

func matchesDelete(t model.Tuple, f store.DeleteFilter) bool {
	if f.Who != nil && t.Subject != *f.Who {
		return false
	}
	if f.Was != nil && t.Relation != *f.Was {
		return false
	}
	if f.OnWhat != nil {
		// onWhat matches either the object slot or the subject slot (the
		// subject slot may itself hold an object acting as a subject, e.g.
		// a hierarchy child-of-parent back-reference).
		objectMatches := t.Object == *f.OnWhat
		subjectMatches := t.Subject.Type == f.OnWhat.Type && t.Subject.ID == f.OnWhat.ID
		if !objectMatches && !subjectMatches {
			return false
		}
	}
	return true
}

func (a *Adapter) removeFromIndex(idx map[string][]string, key, id string) {
	ids := idx[key]
	for i, existing := range ids {
		if existing == id {
			idx[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(idx[key]) == 0 {
		delete(idx, key)
	}
}

func (a *Adapter) FindTuples(ctx context.Context, partial store.Filter) ([]model.Tuple, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []model.Tuple
	for _, t := range a.tuples {
		if matchesFilter(t, partial) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matchesFilter(t model.Tuple, f store.Filter) bool {
	if f.Subject != nil && t.Subject != *f.Subject {
		return false
	}
	if f.Relation != nil && t.Relation != *f.Relation {
		return false
	}
	if f.Object != nil && t.Object != *f.Object {
		return false
	}
	if f.ConditionSet {
		if f.Condition == nil {
			// "condition present but null" means condition-free tuples
			// only, per the stricter adapter reading this engine follows.
			if t.Condition != nil {
				return false
			}
		} else if !t.Condition.Equal(f.Condition) {
			return false
		}
	}
	return true
}

func (a *Adapter) FindSubjects(ctx context.Context, object model.Object, relation model.Relation, opts store.FindSubjectsOptions) ([]model.SubjectRef, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]bool)
	var out []model.SubjectRef
	for _, id := range a.byObj[objKey(object)] {
		t := a.tuples[id]
		if t.Relation != relation {
			continue
		}
		if opts.SubjectType != "" && t.Subject.Type != opts.SubjectType {
			continue
		}
		k := t.Subject.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t.Subject)
	}
	return out, nil
}

func (a *Adapter) FindObjects(ctx context.Context, subject model.SubjectRef, relation model.Relation, opts store.FindObjectsOptions) ([]model.Object, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]bool)
	var out []model.Object
	for _, id := range a.bySubj[subjKey(subject)] {
		t := a.tuples[id]
		if t.Relation != relation {
			continue
		}
		if opts.ObjectType != "" && t.Object.Type != opts.ObjectType {
			continue
		}
		k := t.Object.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t.Object)
	}
	return out, nil
}

var _ store.Adapter = (*Adapter)(nil)
