// Package work defines the Work item and RestResponse types shared by the
// rate limiter and the requester, plus the RateLimiter interface they are
// exchanged through. It sits at the bottom of the dependency graph: neither
// the ratelimit package nor the requester package need import each other,
// because a Work item carries its own execution closure.
package work

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/V-Play-Games/RAWF/route"
)

// ExecuteFunc performs the actual HTTP round trip for a Work item and
// reports the delay the rate limiter should apply before considering the
// slot free again (non-zero only when a 429 was observed).
type ExecuteFunc func() (delayMs int64, err error)

// Work is a single queued API call tracked by the rate limiter, from the
// moment a caller submits a RestAction until exactly one of its callbacks
// has fired.
type Work struct {
	ID    string
	Route *route.CompiledRoute

	Body        []byte
	ContentType string
	Headers     map[string]string

	Priority bool
	Deadline int64 // unix ms; 0 = none

	// Check is consulted before dispatch; returning false skips the Work
	// with a Cancelled failure.
	Check func() bool

	onSuccess func(*RestResponse)
	onFailure func(error)
	execute   ExecuteFunc

	cancelled atomic.Bool
	done      atomic.Bool
}

// New builds a Work item with a fresh correlation id.
func New(r *route.CompiledRoute, onSuccess func(*RestResponse), onFailure func(error)) *Work {
	return &Work{
		ID:        uuid.NewString(),
		Route:     r,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
}

// SetExecutor attaches the closure the rate limiter's bucket worker invokes
// to actually perform the HTTP call. Called by the requester before the
// Work is handed to the rate limiter's Queue.
func (w *Work) SetExecutor(fn ExecuteFunc) { w.execute = fn }

// Execute invokes the attached executor. It is a programmer error to call
// this before SetExecutor.
func (w *Work) Execute() (int64, error) { return w.execute() }

// Cancel flips the cancelled flag; idempotent, safe for concurrent callers.
func (w *Work) Cancel() { w.cancelled.Store(true) }

func (w *Work) IsCancelled() bool { return w.cancelled.Load() }

// IsSkipped reports whether this Work should be skipped rather than
// dispatched, and, if so, whether the reason was an expired deadline
// (timedOut) as opposed to explicit cancellation or a failed check
// predicate — callers map these onto the Timeout/Cancelled error kinds.
func (w *Work) IsSkipped() (skipped bool, timedOut bool) {
	if w.IsCancelled() {
		return true, false
	}
	if w.Deadline > 0 && time.Now().UnixMilli() > w.Deadline {
		return true, true
	}
	if w.Check != nil && !w.Check() {
		return true, false
	}
	return false, false
}

// markDone performs the at-most-once CAS guarding onSuccess/onFailure.
func (w *Work) markDone() bool { return w.done.CompareAndSwap(false, true) }

// Complete fires onSuccess at most once for the lifetime of this Work.
func (w *Work) Complete(resp *RestResponse) {
	if !w.markDone() {
		return
	}
	if w.onSuccess != nil {
		w.onSuccess(resp)
	}
}

// Fail fires onFailure at most once for the lifetime of this Work.
func (w *Work) Fail(err error) {
	if !w.markDone() {
		return
	}
	if w.onFailure != nil {
		w.onFailure(err)
	}
}
