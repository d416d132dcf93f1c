// Package resiliency wraps a store.Adapter with a circuit breaker, so a
// struggling backend fails fast instead of piling up blocked Check calls.
package resiliency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
)

// CircuitBreaker is a minimal three-state breaker: CLOSED passes calls
// through, OPEN rejects them immediately, HALF_OPEN allows one probe after
// resetTimeout elapses.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string // "CLOSED", "OPEN", "HALF_OPEN"
}

// NewCircuitBreaker constructs a breaker that opens after threshold
// consecutive failures and stays open for resetTimeout before allowing a
// half-open probe.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        "CLOSED",
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "HALF_OPEN" {
		// The single probe is still in flight.
		return false
	}
	if cb.state == "OPEN" {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "CLOSED"
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.failureCount >= cb.threshold {
		cb.state = "OPEN"
	}
}

// Adapter wraps a store.Adapter, rejecting every call with
// ErrCircuitOpen once the breaker trips, and recording each call's outcome.
type Adapter struct {
	inner   store.Adapter
	breaker *CircuitBreaker
}

// ErrCircuitOpen is returned (wrapped in a *store.StorageError) when the
// breaker is open.
type ErrCircuitOpen struct{ Name string }

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Name)
}

// Wrap decorates inner with a circuit breaker that opens after threshold
// consecutive failures and probes again after resetTimeout.
func Wrap(inner store.Adapter, name string, threshold int, resetTimeout time.Duration) *Adapter {
	return &Adapter{inner: inner, breaker: NewCircuitBreaker(name, threshold, resetTimeout)}
}

func (a *Adapter) guard(op string, fn func() error) error {
	if !a.breaker.Allow() {
		return store.Wrap(op, &ErrCircuitOpen{Name: a.breaker.name})
	}
	err := fn()
	if err != nil {
		a.breaker.Failure()
		return err
	}
	a.breaker.Success()
	return nil
}

func (a *Adapter) Write(ctx context.Context, tuples []model.Tuple) ([]model.Tuple, error) {
	var out []model.Tuple
	err := a.guard("Write", func() error {
		var innerErr error
		out, innerErr = a.inner.Write(ctx, tuples)
		return innerErr
	})
	return out, err
}

func (a *Adapter) Delete(ctx context.Context, filter store.DeleteFilter) (int, error) {
	var n int
	err := a.guard("Delete", func() error {
		var innerErr error
		n, innerErr = a.inner.Delete(ctx, filter)
		return innerErr
	})
	return n, err
}

func (a *Adapter) FindTuples(ctx context.Context, partial store.Filter) ([]model.Tuple, error) {
	var out []model.Tuple
	err := a.guard("FindTuples", func() error {
		var innerErr error
		out, innerErr = a.inner.FindTuples(ctx, partial)
		return innerErr
	})
	return out, err
}

func (a *Adapter) FindSubjects(ctx context.Context, object model.Object, relation model.Relation, opts store.FindSubjectsOptions) ([]model.SubjectRef, error) {
	var out []model.SubjectRef
	err := a.guard("FindSubjects", func() error {
		var innerErr error
		out, innerErr = a.inner.FindSubjects(ctx, object, relation, opts)
		return innerErr
	})
	return out, err
}

func (a *Adapter) FindObjects(ctx context.Context, subject model.SubjectRef, relation model.Relation, opts store.FindObjectsOptions) ([]model.Object, error) {
	var out []model.Object
	err := a.guard("FindObjects", func() error {
		var innerErr error
		out, innerErr = a.inner.FindObjects(ctx, subject, relation, opts)
		return innerErr
	})
	return out, err
}

var _ store.Adapter = (*Adapter)(nil)
