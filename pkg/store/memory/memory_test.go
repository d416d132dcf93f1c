package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
	"github.com/relguard/rebac/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(typ, id string) model.SubjectRef { return model.SubjectRef{Type: typ, ID: id} }
func obj(typ, id string) model.Object     { return model.Object{Type: typ, ID: id} }

func TestAdapter_WriteAssignsIDsAndPreservesOrder(t *testing.T) {
	a := memory.New(nil)
	ctx := context.Background()

	in := []model.Tuple{
		{Subject: ref("user", "alice"), Relation: "viewer", Object: obj("doc", "1")},
		{Subject: ref("user", "bob"), Relation: "viewer", Object: obj("doc", "2")},
	}
	out, err := a.Write(ctx, in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0].ID)
	assert.NotEmpty(t, out[1].ID)
	assert.Equal(t, "alice", out[0].Subject.ID)
	assert.Equal(t, "bob", out[1].Subject.ID)
}

func TestAdapter_DeleteEmptyFilterDeletesNothing(t *testing.T) {
	a := memory.New(nil)
	ctx := context.Background()
	_, _ = a.Write(ctx, []model.Tuple{{Subject: ref("user", "a"), Relation: "viewer", Object: obj("doc", "1")}})

	n, err := a.Delete(ctx, store.DeleteFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	tuples, _ := a.FindTuples(ctx, store.Filter{})
	assert.Len(t, tuples, 1)
}

func TestAdapter_DeleteOnWhatMatchesObjectOrSubjectSlot(t *testing.T) {
	a := memory.New(nil)
	ctx := context.Background()

	_, _ = a.Write(ctx, []model.Tuple{
		// folder:f1 appears as the object here...
		{Subject: ref("user", "alice"), Relation: "viewer", Object: obj("folder", "f1")},
		// ...and as the subject (child points at parent) here.
		{Subject: model.RefOfObject(obj("doc", "d1")), Relation: "parent", Object: obj("folder", "f1")},
	})

	target := obj("folder", "f1")
	n, err := a.Delete(ctx, store.DeleteFilter{OnWhat: &target})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, _ := a.FindTuples(ctx, store.Filter{})
	assert.Empty(t, remaining)
}

func TestAdapter_FindTuples_ConditionSemantics(t *testing.T) {
	a := memory.New(nil)
	ctx := context.Background()
	now := time.Now()

	_, _ = a.Write(ctx, []model.Tuple{
		{Subject: ref("user", "a"), Relation: "viewer", Object: obj("doc", "1")},
		{Subject: ref("user", "b"), Relation: "viewer", Object: obj("doc", "1"), Condition: &model.Condition{ValidSince: &now}},
	})

	// Condition absent from filter: wildcard, both match.
	all, _ := a.FindTuples(ctx, store.Filter{Relation: relPtr("viewer")})
	assert.Len(t, all, 2)

	// Condition present-but-nil: only condition-free tuples.
	conditionFree, _ := a.FindTuples(ctx, store.Filter{Relation: relPtr("viewer"), ConditionSet: true, Condition: nil})
	require.Len(t, conditionFree, 1)
	assert.Equal(t, "a", conditionFree[0].Subject.ID)
}

func relPtr(r model.Relation) *model.Relation { return &r }

func TestAdapter_FindSubjectsAndFindObjectsDeduplicate(t *testing.T) {
	a := memory.New(nil)
	ctx := context.Background()

	_, _ = a.Write(ctx, []model.Tuple{
		{Subject: ref("user", "alice"), Relation: "viewer", Object: obj("doc", "1")},
		{Subject: ref("user", "alice"), Relation: "viewer", Object: obj("doc", "1")}, // duplicate tuple key
	})

	subs, err := a.FindSubjects(ctx, obj("doc", "1"), "viewer", store.FindSubjectsOptions{})
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	objs, err := a.FindObjects(ctx, ref("user", "alice"), "viewer", store.FindObjectsOptions{})
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}
