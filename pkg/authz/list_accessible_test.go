package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relguard/rebac/pkg/authz"
	"github.com/relguard/rebac/pkg/model"
)

func TestListAccessibleObjects_DirectAndHierarchy(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()
	alice := sub("user", "alice")

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(alice), Relation: "viewer", Object: obj("doc", "1")},
		{Subject: model.RefOfSubject(alice), Relation: "editor", Object: obj("folder", "f1")},
		{Subject: model.RefOfObject(obj("doc", "2")), Relation: "parent", Object: obj("folder", "f1")},
	})
	require.NoError(t, err)

	results, err := e.ListAccessibleObjects(ctx, alice, "doc", nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := make(map[string]authz.AccessibleObject, len(results))
	for _, r := range results {
		byID[r.Object.ID] = r
	}

	doc1, ok := byID["1"]
	require.True(t, ok)
	assert.Contains(t, doc1.Actions, model.Action("view"))
	assert.Nil(t, doc1.Parent)

	doc2, ok := byID["2"]
	require.True(t, ok)
	assert.Contains(t, doc2.Actions, model.Action("edit"))
	require.NotNil(t, doc2.Parent)
	assert.Equal(t, "f1", doc2.Parent.ID)
}

func TestListAccessibleObjects_FiltersByActionAndType(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()
	alice := sub("user", "alice")

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(alice), Relation: "viewer", Object: obj("doc", "1")},
		{Subject: model.RefOfSubject(alice), Relation: "owner", Object: obj("doc", "2")},
		{Subject: model.RefOfSubject(alice), Relation: "owner", Object: obj("folder", "f1")},
	})
	require.NoError(t, err)

	editAction := model.Action("edit")
	results, err := e.ListAccessibleObjects(ctx, alice, "doc", &editAction, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].Object.ID)
	assert.Equal(t, []model.Action{"edit"}, results[0].Actions)
}

func TestListAccessibleObjects_NoAccessReturnsEmpty(t *testing.T) {
	s := testSchema(t)
	e, _ := newEngine(t, s, nil)
	ctx := context.Background()

	results, err := e.ListAccessibleObjects(ctx, sub("user", "nobody"), "doc", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
