// Package schema holds the validated declarative model: relation kinds, the
// action-to-relations map, and the hierarchy propagation map that the
// decision engine traverses.
package schema

import (
	"fmt"

	"github.com/relguard/rebac/pkg/model"
)

// RelationKind categorizes how a relation's tuples are interpreted by check.
type RelationKind string

const (
	// Direct relations grant an action directly: the tuple itself is the
	// evidence.
	Direct RelationKind = "direct"
	// Group relations form a transitive subject-of edge: membership in the
	// object flows permissions to the subject.
	Group RelationKind = "group"
	// Hierarchy relations form a child-of edge between objects: some parent
	// actions propagate into some child actions.
	Hierarchy RelationKind = "hierarchy"
)

// RelationDef declares one relation's kind.
type RelationDef struct {
	Name string
	Kind RelationKind
}

// Declaration is the raw, unvalidated description a Schema is built from.
// It is also the shape the YAML loader (pkg/schema/loader) decodes into.
type Declaration struct {
	SchemaVersion       string
	Relations           []RelationDef
	ActionToRelations   map[model.Action][]model.Relation
	HierarchyPropagation map[model.Action][]model.Action
}

// Schema is the engine's validated, immutable view of a Declaration.
// Construction never fails on dangling references: those surface as
// Warnings instead, per spec.
type Schema struct {
	relationKind map[model.Relation]RelationKind
	// relationOrder preserves declaration order. Direct-relation priority
	// comes from each action's own required-relations list, and the
	// first-declared-wins group/hierarchy pick is made while Build walks
	// the declaration, so this is only read by Digest.
	relationOrder []model.Relation

	actionToRelations    map[model.Action][]model.Relation
	hierarchyPropagation map[model.Action][]model.Action

	groupRelation     model.Relation
	hasGroupRelation  bool
	hierarchyRelation model.Relation
	hasHierarchyRel   bool

	Warnings []string
}

// Build validates a Declaration and constructs a Schema. It never returns an
// error for dangling references (spec: "unknown names are surfaced as
// warnings and behave as no-ops"); the only hard failures are structurally
// impossible declarations: duplicate relation names, or a relation of
// unknown kind.
func Build(decl Declaration) (*Schema, error) {
	s := &Schema{
		relationKind:         make(map[model.Relation]RelationKind),
		actionToRelations:    make(map[model.Action][]model.Relation),
		hierarchyPropagation: make(map[model.Action][]model.Action),
	}

	for _, rd := range decl.Relations {
		rel := model.Relation(rd.Name)
		if _, exists := s.relationKind[rel]; exists {
			return nil, fmt.Errorf("schema: relation %q declared more than once", rd.Name)
		}
		s.relationKind[rel] = rd.Kind
		s.relationOrder = append(s.relationOrder, rel)

		switch rd.Kind {
		case Group:
			if s.hasGroupRelation {
				s.warn(fmt.Sprintf("multiple group relations declared; using first-declared %q, ignoring %q", s.groupRelation, rd.Name))
			} else {
				s.groupRelation = rel
				s.hasGroupRelation = true
			}
		case Hierarchy:
			if s.hasHierarchyRel {
				s.warn(fmt.Sprintf("multiple hierarchy relations declared; using first-declared %q, ignoring %q", s.hierarchyRelation, rd.Name))
			} else {
				s.hierarchyRelation = rel
				s.hasHierarchyRel = true
			}
		case Direct:
			// no cached lookup needed
		default:
			return nil, fmt.Errorf("schema: relation %q has unknown kind %q", rd.Name, rd.Kind)
		}
	}

	for action, rels := range decl.ActionToRelations {
		ordered := append([]model.Relation(nil), rels...)
		s.actionToRelations[action] = ordered
		for _, rel := range ordered {
			if _, ok := s.relationKind[rel]; !ok {
				s.warn(fmt.Sprintf("action %q references undeclared relation %q", action, rel))
			}
		}
	}

	for action, parents := range decl.HierarchyPropagation {
		ordered := append([]model.Action(nil), parents...)
		s.hierarchyPropagation[action] = ordered
		for _, pa := range ordered {
			if _, ok := decl.ActionToRelations[pa]; !ok {
				s.warn(fmt.Sprintf("hierarchyPropagation[%q] references action %q with no relation mapping", action, pa))
			}
		}
	}

	return s, nil
}

func (s *Schema) warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// RelationKind reports the kind of a declared relation, and whether it is
// declared at all.
func (s *Schema) RelationKind(r model.Relation) (RelationKind, bool) {
	k, ok := s.relationKind[r]
	return k, ok
}

// HasRelation reports whether r is declared in the schema.
func (s *Schema) HasRelation(r model.Relation) bool {
	_, ok := s.relationKind[r]
	return ok
}

// RelationsForAction returns the ordered list of relations that directly
// grant action. A nil/empty result means the action is never granted by any
// direct relation; it does not necessarily mean check returns false for all
// subjects, since group/hierarchy paths recurse into other actions that may
// themselves have required relations.
func (s *Schema) RelationsForAction(a model.Action) []model.Relation {
	return s.actionToRelations[a]
}

// HasAction reports whether a appears at all in actionToRelations. Per spec
// §4.1, an action absent from the map is never granted directly, and check
// short-circuits without traversal.
func (s *Schema) HasAction(a model.Action) bool {
	_, ok := s.actionToRelations[a]
	return ok
}

// PropagatingActions returns the ordered list of parent actions that, if
// held on a hierarchy parent, grant childAction on the child.
func (s *Schema) PropagatingActions(childAction model.Action) []model.Action {
	return s.hierarchyPropagation[childAction]
}

// GroupRelation returns the first-declared group relation, if any.
func (s *Schema) GroupRelation() (model.Relation, bool) {
	return s.groupRelation, s.hasGroupRelation
}

// HierarchyRelation returns the first-declared hierarchy relation, if any.
func (s *Schema) HierarchyRelation() (model.Relation, bool) {
	return s.hierarchyRelation, s.hasHierarchyRel
}

// Actions returns every action named in actionToRelations, in map order
// (callers needing determinism should sort).
func (s *Schema) Actions() []model.Action {
	out := make([]model.Action, 0, len(s.actionToRelations))
	for a := range s.actionToRelations {
		out = append(out, a)
	}
	return out
}

// AllPropagatingActions returns the deduplicated set of every action that
// appears as a parent action somewhere in hierarchyPropagation, across all
// child actions.
func (s *Schema) AllPropagatingActions() []model.Action {
	seen := make(map[model.Action]bool)
	var out []model.Action
	for _, parents := range s.hierarchyPropagation {
		for _, pa := range parents {
			if seen[pa] {
				continue
			}
			seen[pa] = true
			out = append(out, pa)
		}
	}
	return out
}
