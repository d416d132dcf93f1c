// Package ratelimit wraps a store.Adapter with a token-bucket limiter, so a
// single noisy caller cannot starve a shared storage backend.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
)

// ErrRateLimited is returned (wrapped in a *store.StorageError) when a call
// would exceed the configured rate and the limiter declines to wait.
type ErrRateLimited struct{}

func (e *ErrRateLimited) Error() string { return "rate limit exceeded" }

// Adapter decorates a store.Adapter with a shared rate.Limiter. Every
// operation waits on the limiter before delegating, returning early if ctx
// is cancelled first.
type Adapter struct {
	inner   store.Adapter
	limiter *rate.Limiter
}

// Wrap decorates inner with a limiter allowing ratePerSecond operations per
// second, with burst allowed to spike above that momentarily.
func Wrap(inner store.Adapter, ratePerSecond float64, burst int) *Adapter {
	return &Adapter{inner: inner, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (a *Adapter) wait(ctx context.Context, op string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return store.Wrap(op, fmt.Errorf("%w: %v", &ErrRateLimited{}, err))
	}
	return nil
}

func (a *Adapter) Write(ctx context.Context, tuples []model.Tuple) ([]model.Tuple, error) {
	if err := a.wait(ctx, "Write"); err != nil {
		return nil, err
	}
	return a.inner.Write(ctx, tuples)
}

func (a *Adapter) Delete(ctx context.Context, filter store.DeleteFilter) (int, error) {
	if err := a.wait(ctx, "Delete"); err != nil {
		return 0, err
	}
	return a.inner.Delete(ctx, filter)
}

func (a *Adapter) FindTuples(ctx context.Context, partial store.Filter) ([]model.Tuple, error) {
	if err := a.wait(ctx, "FindTuples"); err != nil {
		return nil, err
	}
	return a.inner.FindTuples(ctx, partial)
}

func (a *Adapter) FindSubjects(ctx context.Context, object model.Object, relation model.Relation, opts store.FindSubjectsOptions) ([]model.SubjectRef, error) {
	if err := a.wait(ctx, "FindSubjects"); err != nil {
		return nil, err
	}
	return a.inner.FindSubjects(ctx, object, relation, opts)
}

func (a *Adapter) FindObjects(ctx context.Context, subject model.SubjectRef, relation model.Relation, opts store.FindObjectsOptions) ([]model.Object, error) {
	if err := a.wait(ctx, "FindObjects"); err != nil {
		return nil, err
	}
	return a.inner.FindObjects(ctx, subject, relation, opts)
}

var _ store.Adapter = (*Adapter)(nil)
