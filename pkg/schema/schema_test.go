package schema_test

import (
	"testing"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioADecl() schema.Declaration {
	return schema.Declaration{
		Relations: []schema.RelationDef{
			{Name: "owner", Kind: schema.Direct},
			{Name: "viewer", Kind: schema.Direct},
		},
		ActionToRelations: map[model.Action][]model.Relation{
			"edit": {"owner"},
			"view": {"owner", "viewer"},
		},
	}
}

func TestBuild_DirectRelations(t *testing.T) {
	s, err := schema.Build(scenarioADecl())
	require.NoError(t, err)
	assert.Empty(t, s.Warnings)

	k, ok := s.RelationKind("owner")
	require.True(t, ok)
	assert.Equal(t, schema.Direct, k)

	assert.Equal(t, []model.Relation{"owner", "viewer"}, s.RelationsForAction("view"))
	assert.True(t, s.HasAction("edit"))
	assert.False(t, s.HasAction("delete"))
}

func TestBuild_WarnsOnUndeclaredRelationReference(t *testing.T) {
	decl := scenarioADecl()
	decl.ActionToRelations["archive"] = []model.Relation{"archiver"}

	s, err := schema.Build(decl)
	require.NoError(t, err)
	require.Len(t, s.Warnings, 1)
	assert.Contains(t, s.Warnings[0], "archiver")
}

func TestBuild_FirstDeclaredGroupWins(t *testing.T) {
	decl := scenarioADecl()
	decl.Relations = append(decl.Relations,
		schema.RelationDef{Name: "member", Kind: schema.Group},
		schema.RelationDef{Name: "also-member", Kind: schema.Group},
	)

	s, err := schema.Build(decl)
	require.NoError(t, err)
	require.Len(t, s.Warnings, 1)

	rel, ok := s.GroupRelation()
	require.True(t, ok)
	assert.Equal(t, model.Relation("member"), rel)
}

func TestBuild_RejectsDuplicateRelationName(t *testing.T) {
	decl := scenarioADecl()
	decl.Relations = append(decl.Relations, schema.RelationDef{Name: "owner", Kind: schema.Direct})

	_, err := schema.Build(decl)
	assert.Error(t, err)
}

func TestBuild_HierarchyPropagationWarnsOnUnknownAction(t *testing.T) {
	decl := scenarioADecl()
	decl.Relations = append(decl.Relations, schema.RelationDef{Name: "parent", Kind: schema.Hierarchy})
	decl.HierarchyPropagation = map[model.Action][]model.Action{
		"view": {"view", "nonexistent-action"},
	}

	s, err := schema.Build(decl)
	require.NoError(t, err)
	require.Len(t, s.Warnings, 1)
	assert.Contains(t, s.Warnings[0], "nonexistent-action")
}

func TestDigest_StableAndSensitiveToShape(t *testing.T) {
	s1, err := schema.Build(scenarioADecl())
	require.NoError(t, err)
	d1, err := s1.Digest()
	require.NoError(t, err)

	s2, err := schema.Build(scenarioADecl())
	require.NoError(t, err)
	d2, err := s2.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	decl3 := scenarioADecl()
	decl3.ActionToRelations["view"] = []model.Relation{"owner"}
	s3, err := schema.Build(decl3)
	require.NoError(t, err)
	d3, err := s3.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
