package authz

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/observability"
	"github.com/relguard/rebac/pkg/store"
)

// AccessibleObject is one result row of ListAccessibleObjects: an object of
// the requested type, every action who holds on it, and its hierarchy
// parent, if any.
type AccessibleObject struct {
	Object  model.Object
	Actions []model.Action
	Parent  *model.Object
}

// ListAccessibleObjects enumerates every object of type ofType that who can
// reach through at least one action, optionally narrowed to a single
// action. It runs in two phases: a cheap candidate-collection pass over
// direct, group, and hierarchy-propagation edges, then a decision pass that
// invokes Check concurrently (bounded by Config.MaxConcurrentChecks) for
// every (candidate, action) pair. Because the candidate pass can surface
// false positives (e.g. a hierarchy ancestor reachable by an action that
// does not itself propagate to the candidate's specific actions), the
// decision pass is authoritative; candidate collection only bounds the
// search space.
//
// maxDepth bounds phase 1's transitive group-membership traversal — a
// separate budget from the per-Check recursion depth used by phase 2 and
// by the decision pass's own e.check calls. A nil maxDepth defaults to
// Config.DefaultCheckDepth.
func (e *Engine) ListAccessibleObjects(ctx context.Context, who model.Subject, ofType string, actionFilter *model.Action, maxDepth *int) ([]AccessibleObject, error) {
	if e.cfg.Observability != nil {
		action := "*"
		if actionFilter != nil {
			action = string(*actionFilter)
		}
		var finish func(error)
		ctx, finish = e.cfg.Observability.TrackOperation(ctx, "rebac.list_accessible_objects",
			observability.CheckOperation(who.String(), action, ofType)...)
		var err error
		defer func() { finish(err) }()
		results, resErr := e.listAccessibleObjects(ctx, who, ofType, actionFilter, maxDepth)
		err = resErr
		return results, err
	}
	return e.listAccessibleObjects(ctx, who, ofType, actionFilter, maxDepth)
}

func (e *Engine) listAccessibleObjects(ctx context.Context, who model.Subject, ofType string, actionFilter *model.Action, maxDepth *int) ([]AccessibleObject, error) {
	now := e.now()
	whoRef := model.RefOfSubject(who)

	depth := e.cfg.DefaultCheckDepth
	if maxDepth != nil {
		depth = *maxDepth
	}

	candidates, childToParent, err := e.collectCandidates(ctx, whoRef, now, depth)
	if err != nil {
		return nil, err
	}

	actions := e.schema.Actions()
	if actionFilter != nil {
		actions = []model.Action{*actionFilter}
	}

	var mu sync.Mutex
	var results []AccessibleObject

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentChecks)

	for c := range candidates {
		obj := c
		if obj.Type != ofType {
			continue
		}
		g.Go(func() error {
			var granted []model.Action
			for _, action := range actions {
				allowed, err := e.check(gctx, whoRef, action, obj, newCheckState())
				if err != nil {
					return err
				}
				if allowed {
					granted = append(granted, action)
				}
			}
			if len(granted) == 0 {
				return nil
			}
			row := AccessibleObject{Object: obj, Actions: granted}
			if parent, ok := childToParent[obj.String()]; ok {
				p := parent
				row.Parent = &p
			}
			mu.Lock()
			results = append(results, row)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Object.String() < results[j].Object.String()
	})
	return results, nil
}

// collectCandidates runs candidate-collection phase 1: direct tuples (plus
// their field-fallback base), transitive group membership (bounded by
// maxDepth, with its own local visited set), and hierarchy ancestor
// reachability. It returns the candidate set and a child->parent map
// covering every hierarchy edge seen, for attaching AccessibleObject's
// Parent field.
func (e *Engine) collectCandidates(ctx context.Context, who model.SubjectRef, now time.Time, maxDepth int) (map[model.Object]bool, map[string]model.Object, error) {
	candidates := make(map[model.Object]bool)

	addWithBase := func(obj model.Object) {
		candidates[obj] = true
		if base, ok := obj.Base(e.cfg.FieldSeparator); ok {
			candidates[base] = true
		}
	}

	directObjectsOf := func(subject model.SubjectRef) error {
		tuples, err := e.storage.FindTuples(ctx, store.Filter{Subject: &subject})
		if err != nil {
			return err
		}
		for _, t := range tuples {
			if t.ValidAt(now) {
				addWithBase(t.Object)
			}
		}
		return nil
	}

	if err := directObjectsOf(who); err != nil {
		return nil, nil, err
	}

	// Transitive group membership: every group who belongs to (directly or
	// through nested groups) contributes its own direct objects.
	if groupRelation, ok := e.schema.GroupRelation(); ok {
		type queued struct {
			ref   model.SubjectRef
			depth int
		}
		visitedGroups := make(map[string]bool)
		queue := []queued{{ref: who, depth: 0}}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if current.depth >= maxDepth {
				continue
			}

			memberships, err := e.storage.FindTuples(ctx, store.Filter{Subject: &current.ref, Relation: &groupRelation})
			if err != nil {
				return nil, nil, err
			}
			for _, m := range memberships {
				if !m.ValidAt(now) {
					continue
				}
				groupKey := m.Object.String()
				if visitedGroups[groupKey] {
					continue
				}
				visitedGroups[groupKey] = true
				groupRef := model.RefOfObject(m.Object)
				if err := directObjectsOf(groupRef); err != nil {
					return nil, nil, err
				}
				queue = append(queue, queued{ref: groupRef, depth: current.depth + 1})
			}
		}
	}

	childToParent := make(map[string]model.Object)
	parentToChildren := make(map[string][]model.Object)
	parentObjs := make(map[string]model.Object)

	if hierarchyRelation, ok := e.schema.HierarchyRelation(); ok {
		links, err := e.storage.FindTuples(ctx, store.Filter{Relation: &hierarchyRelation})
		if err != nil {
			return nil, nil, err
		}
		for _, link := range links {
			if !link.ValidAt(now) {
				continue
			}
			child := link.Subject.AsObject()
			parent := link.Object
			childToParent[child.String()] = parent
			parentToChildren[parent.String()] = append(parentToChildren[parent.String()], child)
			parentObjs[parent.String()] = parent
		}

		propagatingActions := e.schema.AllPropagatingActions()
		for parentKey, children := range parentToChildren {
			parent := parentObjs[parentKey]
			for _, parentAction := range propagatingActions {
				allowed, err := e.check(ctx, who, parentAction, parent, newCheckState())
				if err != nil {
					return nil, nil, err
				}
				if allowed {
					for _, child := range children {
						addWithBase(child)
					}
					break
				}
			}
		}
	}

	return candidates, childToParent, nil
}
