// Package authz implements the relationship-based access control decision
// engine: a schema-directed, recursive check over tuples held behind a
// storage adapter, plus the tuple-management operations that keep those
// tuples current.
package authz

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/observability"
	"github.com/relguard/rebac/pkg/schema"
	"github.com/relguard/rebac/pkg/store"
)

// Engine evaluates access decisions against a Schema and a storage Adapter.
// It holds no tuple state of its own; every Check re-reads storage.
type Engine struct {
	storage store.Adapter
	schema  *schema.Schema
	cfg     Config
	now     func() time.Time
}

// New constructs an Engine. It returns a *ConfigurationError if Storage or
// Schema is missing.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Engine{
		storage: cfg.Storage,
		schema:  cfg.Schema,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// checkState carries the per-top-level-call visited set and current depth
// through the recursion. It is never shared across concurrent Check calls.
type checkState struct {
	visited map[string]bool
	depth   int
}

func newCheckState() *checkState {
	return &checkState{visited: make(map[string]bool)}
}

func visitedKey(who model.SubjectRef, action model.Action, onWhat model.Object) string {
	return fmt.Sprintf("%s|%s|%s", who, action, onWhat)
}

// Check reports whether subject who can perform action on object onWhat.
// It recurses through direct, group, and hierarchy relations as declared in
// the schema, bounded by Config.DefaultCheckDepth and guarded against
// cycles via a per-call visited set.
func (e *Engine) Check(ctx context.Context, who model.Subject, action model.Action, onWhat model.Object) (bool, error) {
	var finish func(error)
	var attrs []attribute.KeyValue
	if e.cfg.Observability != nil {
		attrs = observability.CheckOperation(who.String(), string(action), onWhat.String())
		ctx, finish = e.cfg.Observability.TrackOperation(ctx, "rebac.check", attrs...)
	}

	allowed, err := e.check(ctx, model.RefOfSubject(who), action, onWhat, newCheckState())

	if finish != nil {
		if err == nil {
			observability.AddSpanEvent(ctx, "decision", observability.DecisionOutcome(attrs, allowed)...)
		}
		finish(err)
	}

	if e.cfg.DecisionRecorder != nil && err == nil {
		e.cfg.DecisionRecorder(DecisionRecord{
			Subject: who.String(),
			Action:  string(action),
			Object:  onWhat.String(),
			Allowed: allowed,
		})
	}
	return allowed, err
}

func (e *Engine) check(ctx context.Context, who model.SubjectRef, action model.Action, onWhat model.Object, state *checkState) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := visitedKey(who, action, onWhat)
	if state.visited[key] {
		return false, nil
	}

	if state.depth > e.cfg.DefaultCheckDepth {
		e.cfg.WarningSink(fmt.Sprintf("authz: depth %d exceeds max check depth %d evaluating %s can %s %s", state.depth, e.cfg.DefaultCheckDepth, who, action, onWhat))
		if e.cfg.ThrowOnMaxDepth {
			return false, &MaxDepthExceededError{Subject: who, Action: action, Object: onWhat, Depth: state.depth}
		}
		return false, nil
	}

	state.visited[key] = true
	defer delete(state.visited, key)

	// An action absent from the schema's action-to-relations map is never
	// granted by any direct relation, and short-circuits the whole
	// traversal: group and hierarchy paths only ever recurse on the same
	// action, so there is nothing further to explore.
	if !e.schema.HasAction(action) {
		return false, nil
	}

	targets := []model.Object{onWhat}
	if base, ok := onWhat.Base(e.cfg.FieldSeparator); ok {
		targets = append(targets, base)
	}

	now := e.now()

	// Direct path: does a tuple (who, relation, target) exist and hold now,
	// for any relation required by action, on either the object itself or
	// its field-fallback base?
	for _, target := range targets {
		for _, relation := range e.schema.RelationsForAction(action) {
			rel := relation
			tuples, err := e.storage.FindTuples(ctx, store.Filter{Subject: &who, Relation: &rel, Object: &target})
			if err != nil {
				return false, err
			}
			for _, t := range tuples {
				if t.ValidAt(now) {
					return true, nil
				}
			}
		}
	}

	// Group path: is who a (possibly transitive) member of some group that
	// itself can perform action on onWhat?
	if groupRelation, ok := e.schema.GroupRelation(); ok {
		memberships, err := e.storage.FindTuples(ctx, store.Filter{Subject: &who, Relation: &groupRelation})
		if err != nil {
			return false, err
		}
		for _, m := range memberships {
			if !m.ValidAt(now) {
				continue
			}
			groupRef := model.RefOfObject(m.Object)
			nextState := &checkState{visited: state.visited, depth: state.depth + 1}
			allowed, err := e.check(ctx, groupRef, action, onWhat, nextState)
			if err != nil {
				return false, err
			}
			if allowed {
				return true, nil
			}
		}
	}

	// Hierarchy path: does onWhat have a parent, and does who hold some
	// action on that parent which propagates into action on the child?
	if hierarchyRelation, ok := e.schema.HierarchyRelation(); ok {
		childRef := model.RefOfObject(onWhat)
		parentLinks, err := e.storage.FindTuples(ctx, store.Filter{Subject: &childRef, Relation: &hierarchyRelation})
		if err != nil {
			return false, err
		}
		propagating := e.schema.PropagatingActions(action)
		for _, link := range parentLinks {
			if !link.ValidAt(now) {
				continue
			}
			parent := link.Object
			for _, parentAction := range propagating {
				childState := &checkState{visited: state.visited, depth: state.depth + 1}
				allowed, err := e.check(ctx, who, parentAction, parent, childState)
				if err != nil {
					return false, err
				}
				if allowed {
					return true, nil
				}
			}
		}
	}

	return false, nil
}
