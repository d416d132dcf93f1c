package schema

import "github.com/relguard/rebac/pkg/canonicalize"

// digestView is the canonical, hashable projection of a Schema: exactly the
// declared shape, independent of map iteration order or cached lookups.
type digestView struct {
	Relations            []RelationDef                     `json:"relations"`
	ActionToRelations     map[string][]string                `json:"actionToRelations"`
	HierarchyPropagation  map[string][]string                `json:"hierarchyPropagation"`
}

// Digest returns the JCS-canonical SHA-256 hash of the schema's declared
// shape. Two engines reporting different digests are running divergent
// schemas; this is metadata for operators, not a decision input.
func (s *Schema) Digest() (string, error) {
	v := digestView{
		ActionToRelations:    make(map[string][]string, len(s.actionToRelations)),
		HierarchyPropagation: make(map[string][]string, len(s.hierarchyPropagation)),
	}
	for _, rel := range s.relationOrder {
		v.Relations = append(v.Relations, RelationDef{Name: string(rel), Kind: s.relationKind[rel]})
	}
	for action, rels := range s.actionToRelations {
		strs := make([]string, len(rels))
		for i, r := range rels {
			strs[i] = string(r)
		}
		v.ActionToRelations[string(action)] = strs
	}
	for action, parents := range s.hierarchyPropagation {
		strs := make([]string, len(parents))
		for i, p := range parents {
			strs[i] = string(p)
		}
		v.HierarchyPropagation[string(action)] = strs
	}
	return canonicalize.Hash(v)
}
