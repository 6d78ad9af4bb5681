package restaction

import "golang.org/x/sync/errgroup"

// CallbackPool bounds how many Queue callbacks run concurrently, the same
// errgroup.SetLimit shape the rate limiter uses for its bucket workers.
// Wiring a RestAction to a pool (via QueueOn) is useful when a caller fires
// many actions at once but wants the resulting onSuccess/onFailure work
// (e.g. writing to a shared cache) serialized or capped.
type CallbackPool struct {
	group errgroup.Group
}

func NewCallbackPool(limit int) *CallbackPool {
	p := &CallbackPool{}
	if limit > 0 {
		p.group.SetLimit(limit)
	}
	return p
}

func (p *CallbackPool) Wait() { p.group.Wait() }

// QueueOn behaves like RestAction.Queue but runs the supplier and callback
// inside pool's bounded concurrency instead of an unbounded goroutine.
func QueueOn[T any](a *RestAction[T], pool *CallbackPool, onSuccess func(T), onFailure func(error)) {
	if a.IsCancelled() {
		if onFailure != nil {
			onFailure(a.cancelledErr())
		}
		return
	}
	pool.group.Go(func() error {
		v, err := a.supplier(a.ctx)
		if err != nil {
			if onFailure != nil {
				withDeadlockGuard(func() { onFailure(err) })
			}
			return nil
		}
		if onSuccess != nil {
			withDeadlockGuard(func() { onSuccess(v) })
		}
		return nil
	})
}
