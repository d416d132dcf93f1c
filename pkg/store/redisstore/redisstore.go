// Package redisstore implements a Redis-backed storage adapter: tuples are
// hashes keyed by id, indexed through one id set per subject and one per
// object (not scoped by relation), so lookups avoid a full keyspace scan in
// the common case.
package redisstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
)

const keyPrefix = "rebac:"

// Adapter is a Redis-backed store.Adapter.
type Adapter struct {
	rdb *redis.Client
}

// New wraps an existing *redis.Client. The caller owns the client's
// lifecycle (Close, connection pool sizing, TLS, auth).
func New(rdb *redis.Client) *Adapter {
	return &Adapter{rdb: rdb}
}

func tupleKey(id string) string     { return keyPrefix + "tuple:" + id }
func subjectSetKey(s model.SubjectRef) string { return keyPrefix + "by_subject:" + s.Type + ":" + s.ID }
func objectSetKey(o model.Object) string      { return keyPrefix + "by_object:" + o.Type + ":" + o.ID }

func (a *Adapter) Write(ctx context.Context, tuples []model.Tuple) ([]model.Tuple, error) {
	out := make([]model.Tuple, len(tuples))
	pipe := a.rdb.TxPipeline()
	for i, t := range tuples {
		stored := t
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		out[i] = stored

		fields := map[string]interface{}{
			"subject_type": stored.Subject.Type,
			"subject_id":   stored.Subject.ID,
			"relation":     string(stored.Relation),
			"object_type":  stored.Object.Type,
			"object_id":    stored.Object.ID,
			"valid_since":  encodeTime(conditionSince(stored.Condition)),
			"valid_until":  encodeTime(conditionUntil(stored.Condition)),
		}
		pipe.HSet(ctx, tupleKey(stored.ID), fields)
		pipe.SAdd(ctx, subjectSetKey(stored.Subject), stored.ID)
		pipe.SAdd(ctx, objectSetKey(stored.Object), stored.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, store.Wrap("Write", err)
	}
	return out, nil
}

func conditionSince(c *model.Condition) *time.Time {
	if c == nil {
		return nil
	}
	return c.ValidSince
}

func conditionUntil(c *model.Condition) *time.Time {
	if c == nil {
		return nil
	}
	return c.ValidUntil
}

func encodeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func (a *Adapter) loadTuple(ctx context.Context, id string) (model.Tuple, bool, error) {
	fields, err := a.rdb.HGetAll(ctx, tupleKey(id)).Result()
	if err != nil {
		return model.Tuple{}, false, err
	}
	if len(fields) == 0 {
		return model.Tuple{}, false, nil
	}
	t := model.Tuple{
		ID:       id,
		Subject:  model.SubjectRef{Type: fields["subject_type"], ID: fields["subject_id"]},
		Relation: model.Relation(fields["relation"]),
		Object:   model.Object{Type: fields["object_type"], ID: fields["object_id"]},
	}
	since, until := decodeTime(fields["valid_since"]), decodeTime(fields["valid_until"])
	if since != nil || until != nil {
		t.Condition = &model.Condition{ValidSince: since, ValidUntil: until}
	}
	return t, true, nil
}

func (a *Adapter) deleteTuple(ctx context.Context, t model.Tuple) error {
	pipe := a.rdb.TxPipeline()
	pipe.Del(ctx, tupleKey(t.ID))
	pipe.SRem(ctx, subjectSetKey(t.Subject), t.ID)
	pipe.SRem(ctx, objectSetKey(t.Object), t.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// candidateIDs returns the subject-index id set when subject is set, else
// the object-index id set; its bool is false when neither is set, and the
// caller then scans every tuple key.
func (a *Adapter) candidateIDs(ctx context.Context, subject *model.SubjectRef, object *model.Object) ([]string, bool, error) {
	switch {
	case subject != nil:
		ids, err := a.rdb.SMembers(ctx, subjectSetKey(*subject)).Result()
		return ids, true, err
	case object != nil:
		ids, err := a.rdb.SMembers(ctx, objectSetKey(*object)).Result()
		return ids, true, err
	default:
		return nil, false, nil
	}
}

func (a *Adapter) allTupleIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := a.rdb.Scan(ctx, 0, tupleKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(tupleKey("")):])
	}
	return ids, iter.Err()
}

// deleteCandidateIDs gathers the index-backed candidate id set for a
// DeleteFilter, or nil if no index applies (forcing a full scan).
// DeleteFilter.OnWhat, unlike Filter.Object, matches a tuple whose subject OR
// object sits at that type/id — a hierarchy child->parent tuple stores the
// child as the subject, so deleting by the child's object identity must also
// pull candidates out of the subject-side index.
func (a *Adapter) deleteCandidateIDs(ctx context.Context, filter store.DeleteFilter) ([]string, bool, error) {
	switch {
	case filter.Who != nil:
		ids, err := a.rdb.SMembers(ctx, subjectSetKey(*filter.Who)).Result()
		return ids, true, err
	case filter.OnWhat != nil:
		onWhatAsSubject := model.SubjectRef{Type: filter.OnWhat.Type, ID: filter.OnWhat.ID}
		objectIDs, err := a.rdb.SMembers(ctx, objectSetKey(*filter.OnWhat)).Result()
		if err != nil {
			return nil, true, err
		}
		subjectIDs, err := a.rdb.SMembers(ctx, subjectSetKey(onWhatAsSubject)).Result()
		if err != nil {
			return nil, true, err
		}
		seen := make(map[string]bool, len(objectIDs)+len(subjectIDs))
		ids := make([]string, 0, len(objectIDs)+len(subjectIDs))
		for _, id := range append(objectIDs, subjectIDs...) {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		return ids, true, nil
	default:
		return nil, false, nil
	}
}

func (a *Adapter) Delete(ctx context.Context, filter store.DeleteFilter) (int, error) {
	if filter.Empty() {
		slog.Warn("redisstore: delete called with empty filter; refusing to delete anything")
		return 0, nil
	}

	ids, _, err := a.deleteCandidateIDs(ctx, filter)
	if err != nil {
		return 0, store.Wrap("Delete", err)
	}
	if ids == nil {
		ids, err = a.allTupleIDs(ctx)
		if err != nil {
			return 0, store.Wrap("Delete", err)
		}
	}

	deleted := 0
	for _, id := range ids {
		t, ok, err := a.loadTuple(ctx, id)
		if err != nil {
			return deleted, store.Wrap("Delete", err)
		}
		if !ok || !matchesDelete(t, filter) {
			continue
		}
		if err := a.deleteTuple(ctx, t); err != nil {
			return deleted, store.Wrap("Delete", err)
		}
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
		objectMatches := t.Object == *f.OnWhat
		subjectMatches := t.Subject.Type == f.OnWhat.Type && t.Subject.ID == f.OnWhat.ID
		if !objectMatches && !subjectMatches {
			return false
		}
	}
	return true
}

func (a *Adapter) FindTuples(ctx context.Context, partial store.Filter) ([]model.Tuple, error) {
	ids, indexed, err := a.candidateIDs(ctx, partial.Subject, partial.Object)
	if err != nil {
		return nil, store.Wrap("FindTuples", err)
	}
	if !indexed {
		ids, err = a.allTupleIDs(ctx)
		if err != nil {
			return nil, store.Wrap("FindTuples", err)
		}
	}

	var out []model.Tuple
	for _, id := range ids {
		t, ok, err := a.loadTuple(ctx, id)
		if err != nil {
			return nil, store.Wrap("FindTuples", err)
		}
		if ok && matchesFilter(t, partial) {
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
	ids, err := a.rdb.SMembers(ctx, objectSetKey(object)).Result()
	if err != nil {
		return nil, store.Wrap("FindSubjects", err)
	}
	seen := make(map[string]bool)
	var out []model.SubjectRef
	for _, id := range ids {
		t, ok, err := a.loadTuple(ctx, id)
		if err != nil {
			return nil, store.Wrap("FindSubjects", err)
		}
		if !ok || t.Relation != relation {
			continue
		}
		if opts.SubjectType != "" && t.Subject.Type != opts.SubjectType {
			continue
		}
		key := t.Subject.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t.Subject)
	}
	return out, nil
}

func (a *Adapter) FindObjects(ctx context.Context, subject model.SubjectRef, relation model.Relation, opts store.FindObjectsOptions) ([]model.Object, error) {
	ids, err := a.rdb.SMembers(ctx, subjectSetKey(subject)).Result()
	if err != nil {
		return nil, store.Wrap("FindObjects", err)
	}
	seen := make(map[string]bool)
	var out []model.Object
	for _, id := range ids {
		t, ok, err := a.loadTuple(ctx, id)
		if err != nil {
			return nil, store.Wrap("FindObjects", err)
		}
		if !ok || t.Relation != relation {
			continue
		}
		if opts.ObjectType != "" && t.Object.Type != opts.ObjectType {
			continue
		}
		key := t.Object.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t.Object)
	}
	return out, nil
}

var _ store.Adapter = (*Adapter)(nil)
