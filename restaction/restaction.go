// Package restaction provides RestAction[T], a deferred, composable
// representation of a single API call: building one queues no request until
// a terminal operation (Queue, Submit, or Complete) is invoked.
package restaction

import (
	"context"
	"sync"
	"time"

	rawferrors "github.com/V-Play-Games/RAWF/errors"
)

// Supplier performs the deferred work and reports its result. It is called
// at most once per terminal invocation.
type Supplier[T any] func(ctx context.Context) (T, error)

// RestAction is a deferred operation that produces a T or fails with an
// error. Operators (Map, FlatMap, Delay, Timeout, Zip, And, OnErrorMap,
// OnErrorFlatMap) return a new RestAction wrapping this one; none of them
// execute anything until a terminal method is called.
type RestAction[T any] struct {
	ctx      context.Context
	supplier Supplier[T]

	mu         sync.Mutex
	priority   bool
	deadlineMs int64
	check      func() bool
	cancelled  bool
	onCancel   []func()
}

// New builds a RestAction from a raw supplier function.
func New[T any](ctx context.Context, supplier Supplier[T]) *RestAction[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RestAction[T]{ctx: ctx, supplier: supplier}
}

// Completed builds a RestAction that already has its outcome, short
// circuiting any executor entirely — useful for cache hits and tests.
func Completed[T any](value T, err error) *RestAction[T] {
	return &RestAction[T]{
		ctx:      context.Background(),
		supplier: func(context.Context) (T, error) { return value, err },
	}
}

// Map transforms a successful result; an error short-circuits unchanged.
func Map[T, R any](a *RestAction[T], fn func(T) R) *RestAction[R] {
	return New(a.ctx, func(ctx context.Context) (R, error) {
		v, err := a.supplier(ctx)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(v), nil
	})
}

// FlatMap chains a, then, on success, runs a second RestAction built from
// its result.
func FlatMap[T, R any](a *RestAction[T], fn func(T) *RestAction[R]) *RestAction[R] {
	return New(a.ctx, func(ctx context.Context) (R, error) {
		v, err := a.supplier(ctx)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(v).supplier(ctx)
	})
}

// OnErrorMap recovers from a failed a by producing a replacement value from
// the error.
func (a *RestAction[T]) OnErrorMap(fn func(error) T) *RestAction[T] {
	return New(a.ctx, func(ctx context.Context) (T, error) {
		v, err := a.supplier(ctx)
		if err == nil {
			return v, nil
		}
		return fn(err), nil
	})
}

// OnErrorFlatMap recovers from a failed a by running a replacement
// RestAction built from the error.
func (a *RestAction[T]) OnErrorFlatMap(fn func(error) *RestAction[T]) *RestAction[T] {
	return New(a.ctx, func(ctx context.Context) (T, error) {
		v, err := a.supplier(ctx)
		if err == nil {
			return v, nil
		}
		return fn(err).supplier(ctx)
	})
}

// Delay defers execution of a by d.
func (a *RestAction[T]) Delay(d time.Duration) *RestAction[T] {
	return New(a.ctx, func(ctx context.Context) (T, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			var zero T
			return zero, rawferrors.Wrap(rawferrors.Cancelled, ctx.Err())
		}
		return a.supplier(ctx)
	})
}

// Timeout fails a with a Timeout error if it has not completed within d.
func (a *RestAction[T]) Timeout(d time.Duration) *RestAction[T] {
	return New(a.ctx, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			v   T
			err error
		}
		ch := make(chan result, 1)
		go func() {
			v, err := a.supplier(ctx)
			ch <- result{v, err}
		}()

		select {
		case r := <-ch:
			return r.v, r.err
		case <-ctx.Done():
			var zero T
			return zero, rawferrors.New(rawferrors.Timeout, "rest action timed out after %s", d)
		}
	})
}

// And runs a and b concurrently and combines their results with fn; an
// error from either short-circuits the other's result (but not its
// execution — both always run to completion).
func And[T, U, R any](a *RestAction[T], b *RestAction[U], fn func(T, U) R) *RestAction[R] {
	return New(a.ctx, func(ctx context.Context) (R, error) {
		var av T
		var bv U
		var aerr, berr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); av, aerr = a.supplier(ctx) }()
		go func() { defer wg.Done(); bv, berr = b.supplier(ctx) }()
		wg.Wait()

		var zero R
		if aerr != nil {
			return zero, aerr
		}
		if berr != nil {
			return zero, berr
		}
		return fn(av, bv), nil
	})
}

// Zip pairs the results of actions, preserving order, running them
// concurrently.
func Zip[T any](actions ...*RestAction[T]) *RestAction[[]T] {
	ctx := context.Background()
	if len(actions) > 0 {
		ctx = actions[0].ctx
	}
	return New(ctx, func(ctx context.Context) ([]T, error) {
		results := make([]T, len(actions))
		errs := make([]error, len(actions))
		var wg sync.WaitGroup
		wg.Add(len(actions))
		for i, a := range actions {
			i, a := i, a
			go func() { defer wg.Done(); results[i], errs[i] = a.supplier(ctx) }()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return results, nil
	})
}

// Priority marks a exempt from a Client's CancelAll sweep. Only meaningful
// for actions built by Client.Do; ignored by every operator and by actions
// built directly via New or Completed.
func (a *RestAction[T]) Priority() *RestAction[T] {
	a.mu.Lock()
	a.priority = true
	a.mu.Unlock()
	return a
}

// Deadline marks a to be skipped, rather than dispatched, once t has
// passed. Only meaningful for actions built by Client.Do.
func (a *RestAction[T]) Deadline(t time.Time) *RestAction[T] {
	a.mu.Lock()
	a.deadlineMs = t.UnixMilli()
	a.mu.Unlock()
	return a
}

// Check attaches a predicate consulted immediately before dispatch;
// returning false skips a with a Cancelled failure. Only meaningful for
// actions built by Client.Do.
func (a *RestAction[T]) Check(fn func() bool) *RestAction[T] {
	a.mu.Lock()
	a.check = fn
	a.mu.Unlock()
	return a
}

// Attrs returns the priority flag, deadline (unix ms, 0 = none), and check
// predicate currently set on a. Client.Do's supplier reads this at dispatch
// time to build the underlying Work.
func (a *RestAction[T]) Attrs() (priority bool, deadlineMs int64, check func() bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.priority, a.deadlineMs, a.check
}

// Cancel marks a cancelled, failing every not-yet-started terminal call
// with a Cancelled error. Idempotent. Any hook registered via OnCancel —
// Client.Do wires one to reach a Work already handed to the rate limiter —
// runs exactly once, the first time Cancel is called.
func (a *RestAction[T]) Cancel() {
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		return
	}
	a.cancelled = true
	hooks := a.onCancel
	a.onCancel = nil
	a.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// IsCancelled reports whether Cancel has been called.
func (a *RestAction[T]) IsCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// OnCancel registers fn to run when Cancel is called, or runs it
// immediately if a is already cancelled.
func (a *RestAction[T]) OnCancel(fn func()) {
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		fn()
		return
	}
	a.onCancel = append(a.onCancel, fn)
	a.mu.Unlock()
}

// cancelledErr builds the Cancelled failure a terminal method reports when
// a was cancelled before it could run.
func (a *RestAction[T]) cancelledErr() error {
	return rawferrors.New(rawferrors.Cancelled, "rest action was cancelled before dispatch")
}

// Queue executes a on its own goroutine and invokes onSuccess or onFailure
// when it completes; at most one of the two ever fires, mirroring Work's
// at-most-once callback contract.
func (a *RestAction[T]) Queue(onSuccess func(T), onFailure func(error)) {
	if a.IsCancelled() {
		if onFailure != nil {
			onFailure(a.cancelledErr())
		}
		return
	}
	go func() {
		v, err := a.supplier(a.ctx)
		if err != nil {
			if onFailure != nil {
				withDeadlockGuard(func() { onFailure(err) })
			}
			return
		}
		if onSuccess != nil {
			withDeadlockGuard(func() { onSuccess(v) })
		}
	}()
}

// Future is a handle to a RestAction submitted asynchronously via Submit.
type Future[T any] struct {
	ch chan result[T]
}

type result[T any] struct {
	v   T
	err error
}

// Submit runs a on its own goroutine and returns a Future for its outcome.
func (a *RestAction[T]) Submit() *Future[T] {
	f := &Future[T]{ch: make(chan result[T], 1)}
	if a.IsCancelled() {
		f.ch <- result[T]{err: a.cancelledErr()}
		return f
	}
	go func() {
		v, err := a.supplier(a.ctx)
		f.ch <- result[T]{v, err}
	}()
	return f
}

// Await blocks until the Future resolves.
func (f *Future[T]) Await() (T, error) {
	r := <-f.ch
	return r.v, r.err
}

// Complete runs a synchronously on the calling goroutine. Calling Complete
// from within another RestAction's callback (Queue's onSuccess/onFailure,
// or inside the supplier of an outer Complete) deadlocks a synchronous executor that shares
// the same single-worker bucket, so this guard rejects the call up front
// with an InvalidState error instead of hanging.
func (a *RestAction[T]) Complete() (T, error) {
	if inDeadlockGuardedFrame() {
		var zero T
		return zero, rawferrors.New(rawferrors.InvalidState, "Complete called synchronously from within another RestAction's Complete on the same goroutine; use Submit or Queue instead")
	}
	if a.IsCancelled() {
		var zero T
		return zero, a.cancelledErr()
	}
	var v T
	var err error
	withDeadlockGuard(func() { v, err = a.supplier(a.ctx) })
	return v, err
}
