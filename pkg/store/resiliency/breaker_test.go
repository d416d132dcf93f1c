package resiliency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
	"github.com/relguard/rebac/pkg/store/resiliency"
)

type failingAdapter struct {
	err   error
	calls int
}

func (f *failingAdapter) Write(ctx context.Context, tuples []model.Tuple) ([]model.Tuple, error) {
	f.calls++
	return nil, f.err
}
func (f *failingAdapter) Delete(ctx context.Context, filter store.DeleteFilter) (int, error) {
	f.calls++
	return 0, f.err
}
func (f *failingAdapter) FindTuples(ctx context.Context, partial store.Filter) ([]model.Tuple, error) {
	f.calls++
	return nil, f.err
}
func (f *failingAdapter) FindSubjects(ctx context.Context, object model.Object, relation model.Relation, opts store.FindSubjectsOptions) ([]model.SubjectRef, error) {
	f.calls++
	return nil, f.err
}
func (f *failingAdapter) FindObjects(ctx context.Context, subject model.SubjectRef, relation model.Relation, opts store.FindObjectsOptions) ([]model.Object, error) {
	f.calls++
	return nil, f.err
}

func TestAdapter_OpensAfterThreshold(t *testing.T) {
	inner := &failingAdapter{err: errors.New("boom")}
	wrapped := resiliency.Wrap(inner, "test", 2, time.Minute)
	ctx := context.Background()

	_, err := wrapped.FindTuples(ctx, store.Filter{})
	require.Error(t, err)
	_, err = wrapped.FindTuples(ctx, store.Filter{})
	require.Error(t, err)

	callsBeforeOpen := inner.calls
	_, err = wrapped.FindTuples(ctx, store.Filter{})
	require.Error(t, err)
	var circuitErr *resiliency.ErrCircuitOpen
	assert.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, callsBeforeOpen, inner.calls, "breaker should reject without calling inner")
}

func TestAdapter_ClosesAfterResetTimeoutOnSuccess(t *testing.T) {
	inner := &failingAdapter{err: errors.New("boom")}
	wrapped := resiliency.Wrap(inner, "test", 1, 10*time.Millisecond)
	ctx := context.Background()

	_, err := wrapped.FindTuples(ctx, store.Filter{})
	require.Error(t, err)

	_, err = wrapped.FindTuples(ctx, store.Filter{})
	var circuitErr *resiliency.ErrCircuitOpen
	require.ErrorAs(t, err, &circuitErr)

	time.Sleep(20 * time.Millisecond)
	inner.err = nil
	_, err = wrapped.FindTuples(ctx, store.Filter{})
	require.NoError(t, err)
}
