package authz

import (
	"context"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
)

// Allow grants relation on onWhat to who, optionally gated by when. It
// returns a *SchemaError if relation is not declared.
func (e *Engine) Allow(ctx context.Context, who model.SubjectRef, relation model.Relation, onWhat model.Object, when *model.Condition) (model.Tuple, error) {
	if !e.schema.HasRelation(relation) {
		return model.Tuple{}, &SchemaError{Op: "Allow", Reason: "relation " + string(relation) + " is not declared"}
	}
	written, err := e.storage.Write(ctx, []model.Tuple{{Subject: who, Relation: relation, Object: onWhat, Condition: when}})
	if err != nil {
		return model.Tuple{}, err
	}
	return written[0], nil
}

// DisallowAllMatching removes every tuple matching filter. An empty filter
// is refused: it returns 0 and emits a warning rather than deleting
// everything, mirroring the same interlock storage adapters are required to
// implement.
func (e *Engine) DisallowAllMatching(ctx context.Context, filter store.DeleteFilter) (int, error) {
	if filter.Empty() {
		e.cfg.WarningSink("authz: DisallowAllMatching called with an empty filter; refusing to delete anything")
		return 0, nil
	}
	return e.storage.Delete(ctx, filter)
}

// AddMember writes (member, groupRelation, group, when?). It returns a
// *SchemaError if the schema declares no group relation.
func (e *Engine) AddMember(ctx context.Context, member model.SubjectRef, group model.Object, when *model.Condition) (model.Tuple, error) {
	groupRelation, ok := e.schema.GroupRelation()
	if !ok {
		return model.Tuple{}, &SchemaError{Op: "AddMember", Reason: "schema declares no group relation"}
	}
	written, err := e.storage.Write(ctx, []model.Tuple{{Subject: member, Relation: groupRelation, Object: group, Condition: when}})
	if err != nil {
		return model.Tuple{}, err
	}
	return written[0], nil
}

// RemoveMember deletes the (member, groupRelation, group) tuple, if any. It
// warns and returns 0 if the schema declares no group relation, rather than
// erroring: removing a membership that could never have existed is a no-op.
func (e *Engine) RemoveMember(ctx context.Context, member model.SubjectRef, group model.Object) (int, error) {
	groupRelation, ok := e.schema.GroupRelation()
	if !ok {
		e.cfg.WarningSink("authz: RemoveMember called but schema declares no group relation")
		return 0, nil
	}
	return e.storage.Delete(ctx, store.DeleteFilter{Who: &member, Was: &groupRelation, OnWhat: &group})
}

// SetParent writes (child, hierarchyRelation, parent, when?), making
// hierarchy-propagating actions held on parent reachable from child. It
// returns a *SchemaError if the schema declares no hierarchy relation.
func (e *Engine) SetParent(ctx context.Context, child model.Object, parent model.Object, when *model.Condition) (model.Tuple, error) {
	hierarchyRelation, ok := e.schema.HierarchyRelation()
	if !ok {
		return model.Tuple{}, &SchemaError{Op: "SetParent", Reason: "schema declares no hierarchy relation"}
	}
	childRef := model.RefOfObject(child)
	written, err := e.storage.Write(ctx, []model.Tuple{{Subject: childRef, Relation: hierarchyRelation, Object: parent, Condition: when}})
	if err != nil {
		return model.Tuple{}, err
	}
	return written[0], nil
}

// RemoveParent deletes the (child, hierarchyRelation, parent) tuple, if any.
func (e *Engine) RemoveParent(ctx context.Context, child model.Object, parent model.Object) (int, error) {
	hierarchyRelation, ok := e.schema.HierarchyRelation()
	if !ok {
		e.cfg.WarningSink("authz: RemoveParent called but schema declares no hierarchy relation")
		return 0, nil
	}
	childRef := model.RefOfObject(child)
	return e.storage.Delete(ctx, store.DeleteFilter{Who: &childRef, Was: &hierarchyRelation, OnWhat: &parent})
}

// ListTuples returns tuples matching filter, applying offset then limit
// client-side. limit <= 0 means unbounded.
func (e *Engine) ListTuples(ctx context.Context, filter store.Filter, offset, limit int) ([]model.Tuple, error) {
	tuples, err := e.storage.FindTuples(ctx, filter)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if offset >= len(tuples) {
			return nil, nil
		}
		tuples = tuples[offset:]
	}
	if limit > 0 && limit < len(tuples) {
		tuples = tuples[:limit]
	}
	return tuples, nil
}
