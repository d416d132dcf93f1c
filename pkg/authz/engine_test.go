package authz_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relguard/rebac/pkg/authz"
	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/schema"
	"github.com/relguard/rebac/pkg/store"
	"github.com/relguard/rebac/pkg/store/memory"
)

// testSchema builds the declaration every test in this file shares: owner/
// viewer/editor direct relations, a member group relation, a parent
// hierarchy relation, and edit-only hierarchy propagation.
func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build(schema.Declaration{
		SchemaVersion: "1.0.0",
		Relations: []schema.RelationDef{
			{Name: "owner", Kind: schema.Direct},
			{Name: "viewer", Kind: schema.Direct},
			{Name: "editor", Kind: schema.Direct},
			{Name: "member", Kind: schema.Group},
			{Name: "parent", Kind: schema.Hierarchy},
		},
		ActionToRelations: map[model.Action][]model.Relation{
			"view":   {"owner", "viewer", "editor"},
			"edit":   {"owner", "editor"},
			"delete": {"owner"},
		},
		HierarchyPropagation: map[model.Action][]model.Action{
			"edit": {"edit"},
		},
	})
	require.NoError(t, err)
	return s
}

func newEngine(t *testing.T, s *schema.Schema, opts func(*authz.Config)) (*authz.Engine, *memory.Adapter) {
	t.Helper()
	adapter := memory.New(nil)
	cfg := authz.Config{Storage: adapter, Schema: s}
	if opts != nil {
		opts(&cfg)
	}
	e, err := authz.New(cfg)
	require.NoError(t, err)
	return e, adapter
}

func sub(typ, id string) model.Subject { return model.Subject{Type: typ, ID: id} }
func obj(typ, id string) model.Object  { return model.Object{Type: typ, ID: id} }

// Scenario A: a direct relation grants the action it maps to.
func TestCheck_DirectRelationGrants(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "viewer", Object: obj("doc", "1")},
	})
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1"))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.Check(ctx, sub("user", "alice"), "edit", obj("doc", "1"))
	require.NoError(t, err)
	assert.False(t, allowed, "viewer does not grant edit")

	allowed, err = e.Check(ctx, sub("user", "bob"), "view", obj("doc", "1"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

// Scenario B: group membership, including nested groups, grants the action
// the group itself holds.
func TestCheck_GroupMembershipGrants(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "member", Object: obj("group", "eng")},
		{Subject: model.RefOfObject(obj("group", "eng")), Relation: "member", Object: obj("group", "all")},
		{Subject: model.RefOfObject(obj("group", "all")), Relation: "viewer", Object: obj("doc", "1")},
	})
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1"))
	require.NoError(t, err)
	assert.True(t, allowed, "membership should transit through nested groups")
}

// Scenario C: hierarchy propagation is selective — only actions named in
// hierarchyPropagation flow from parent to child.
func TestCheck_HierarchyPropagationIsSelective(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "editor", Object: obj("folder", "f1")},
		{Subject: model.RefOfObject(obj("doc", "d1")), Relation: "parent", Object: obj("folder", "f1")},
	})
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "edit", obj("doc", "d1"))
	require.NoError(t, err)
	assert.True(t, allowed, "edit propagates from folder editor to doc")

	allowed, err = e.Check(ctx, sub("user", "alice"), "view", obj("doc", "d1"))
	require.NoError(t, err)
	assert.False(t, allowed, "view is not declared as a propagating action")
}

// Scenario D: an object id carrying a field suffix falls back to its base
// resource's tuples.
func TestCheck_FieldFallback(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "viewer", Object: obj("doc", "1")},
	})
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1#title"))
	require.NoError(t, err)
	assert.True(t, allowed, "field-suffixed object id should fall back to its base resource")
}

// Scenario D (continued): only the substring after the LAST separator is
// treated as the field, so an id with multiple separators still resolves
// to a single base.
func TestCheck_FieldFallbackUsesLastSeparatorOnly(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "viewer", Object: obj("doc", "1#section#2")},
	})
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1#section#2#title"))
	require.NoError(t, err)
	assert.True(t, allowed)
}

// Scenario E: a tuple's time condition gates whether it is currently valid.
func TestCheck_TimeCondition(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	now := time.Now()
	since := now.Add(time.Hour)
	until := now.Add(2 * time.Hour)

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "viewer", Object: obj("doc", "1"),
			Condition: &model.Condition{ValidSince: &since, ValidUntil: &until}},
	})
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1"))
	require.NoError(t, err)
	assert.False(t, allowed, "not yet valid")
}

// Scenario F: a membership cycle must not hang or stack-overflow the
// checker; it simply fails to find a grant and returns false.
func TestCheck_MembershipCycleTerminates(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "member", Object: obj("group", "a")},
		{Subject: model.RefOfObject(obj("group", "a")), Relation: "member", Object: obj("group", "b")},
		{Subject: model.RefOfObject(obj("group", "b")), Relation: "member", Object: obj("group", "a")},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	var allowed bool
	var checkErr error
	go func() {
		allowed, checkErr = e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1"))
		close(done)
	}()

	select {
	case <-done:
		require.NoError(t, checkErr)
		assert.False(t, allowed)
	case <-time.After(2 * time.Second):
		t.Fatal("check did not terminate on a membership cycle")
	}
}

// Boundary: an action not declared in actionToRelations is never granted,
// regardless of what tuples exist.
func TestCheck_UndeclaredActionNeverGranted(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "owner", Object: obj("doc", "1")},
	})
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "archive", obj("doc", "1"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

// Boundary: a long hierarchy chain exceeding the configured depth returns
// false by default, or a *MaxDepthExceededError when ThrowOnMaxDepth is set.
func TestCheck_MaxDepthExceeded(t *testing.T) {
	s := testSchema(t)
	ctx := context.Background()

	build := func(adapter *memory.Adapter, chainLen int) {
		for i := 0; i < chainLen; i++ {
			child := obj("folder", strconv.Itoa(i))
			parent := obj("folder", strconv.Itoa(i+1))
			_, err := adapter.Write(ctx, []model.Tuple{
				{Subject: model.RefOfObject(child), Relation: "parent", Object: parent},
			})
			require.NoError(t, err)
		}
		top := obj("folder", strconv.Itoa(chainLen))
		_, err := adapter.Write(ctx, []model.Tuple{
			{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "editor", Object: top},
		})
		require.NoError(t, err)
	}

	t.Run("denied silently by default", func(t *testing.T) {
		e, adapter := newEngine(t, s, func(c *authz.Config) { c.DefaultCheckDepth = 3 })
		build(adapter, 10)
		allowed, err := e.Check(ctx, sub("user", "alice"), "edit", obj("folder", "0"))
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("throws when configured", func(t *testing.T) {
		e, adapter := newEngine(t, s, func(c *authz.Config) {
			c.DefaultCheckDepth = 3
			c.ThrowOnMaxDepth = true
		})
		build(adapter, 10)
		_, err := e.Check(ctx, sub("user", "alice"), "edit", obj("folder", "0"))
		require.Error(t, err)
		var depthErr *authz.MaxDepthExceededError
		assert.ErrorAs(t, err, &depthErr)
	})
}

func TestEngine_New_RejectsMissingDependencies(t *testing.T) {
	_, err := authz.New(authz.Config{})
	require.Error(t, err)
	var cfgErr *authz.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEngine_Allow_RejectsUndeclaredRelation(t *testing.T) {
	s := testSchema(t)
	e, _ := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := e.Allow(ctx, model.RefOfSubject(sub("user", "alice")), "publisher", obj("doc", "1"), nil)
	require.Error(t, err)
	var schemaErr *authz.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestEngine_AddMemberAndRemoveMember(t *testing.T) {
	s := testSchema(t)
	e, _ := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := e.AddMember(ctx, model.RefOfSubject(sub("user", "alice")), obj("group", "eng"), nil)
	require.NoError(t, err)
	_, err = e.Allow(ctx, model.RefOfObject(obj("group", "eng")), "viewer", obj("doc", "1"), nil)
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1"))
	require.NoError(t, err)
	assert.True(t, allowed)

	n, err := e.RemoveMember(ctx, model.RefOfSubject(sub("user", "alice")), obj("group", "eng"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	allowed, err = e.Check(ctx, sub("user", "alice"), "view", obj("doc", "1"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEngine_SetParentAndRemoveParent(t *testing.T) {
	s := testSchema(t)
	e, _ := newEngine(t, s, nil)
	ctx := context.Background()

	_, err := e.Allow(ctx, model.RefOfSubject(sub("user", "alice")), "editor", obj("folder", "f1"), nil)
	require.NoError(t, err)
	_, err = e.SetParent(ctx, obj("doc", "d1"), obj("folder", "f1"), nil)
	require.NoError(t, err)

	allowed, err := e.Check(ctx, sub("user", "alice"), "edit", obj("doc", "d1"))
	require.NoError(t, err)
	assert.True(t, allowed)

	n, err := e.RemoveParent(ctx, obj("doc", "d1"), obj("folder", "f1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	allowed, err = e.Check(ctx, sub("user", "alice"), "edit", obj("doc", "d1"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEngine_DisallowAllMatching_RefusesEmptyFilter(t *testing.T) {
	s := testSchema(t)
	e, adapter := newEngine(t, s, nil)
	ctx := context.Background()

	_, _ = adapter.Write(ctx, []model.Tuple{
		{Subject: model.RefOfSubject(sub("user", "alice")), Relation: "viewer", Object: obj("doc", "1")},
	})

	n, err := e.DisallowAllMatching(ctx, store.DeleteFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
