package work

import "github.com/V-Play-Games/RAWF/route"

// RateLimiter is implemented by the bucket-based scheduler in package
// ratelimit (or by a caller-supplied alternative wired via
// WithRateLimiterFactory). It is declared here, rather than in ratelimit,
// so the requester package can depend on the interface without depending on
// the concrete implementation package.
type RateLimiter interface {
	// Queue enqueues w under its route's bucket, creating the bucket and
	// scheduling a worker if necessary. Returns an error if the limiter
	// has been shut down.
	Queue(w *Work) error

	// GetDelayMs reports how long, in milliseconds, a caller should wait
	// before a request on r would be dispatched right now.
	GetDelayMs(r *route.CompiledRoute) (int64, error)

	// HandleResponse updates bucket/global state from resp's headers and
	// status, returning the bucket's new delay iff resp is a 429.
	HandleResponse(r *route.CompiledRoute, resp *RestResponse) (int64, error)

	// CancelAll cancels every non-priority, not-yet-dispatched Work across
	// every bucket and returns how many were cancelled.
	CancelAll() (int, error)

	// Shutdown stops background scheduling and rejects further Queue calls.
	Shutdown() error
}
