// Package ratelimit implements the bucket-based sequential dispatcher: each
// (route, major-parameter) pair maps to a bucket, and a bucket admits at
// most one in-flight request at a time, gated by the limits the API host
// reports back on each response plus a shared global deadline.
package ratelimit

import (
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	rawferrors "github.com/V-Play-Games/RAWF/errors"
	"github.com/V-Play-Games/RAWF/route"
	"github.com/V-Play-Games/RAWF/work"
)

// lockTimeout bounds how long a critical section will wait to acquire the
// limiter's lock before concluding the lock is corrupted — held forever by
// a goroutine that will never release it.
const lockTimeout = 10 * time.Second

// SequentialRateLimiter is the default work.RateLimiter implementation.
type SequentialRateLimiter struct {
	// lockSem is a buffered-channel mutex: sync.Mutex has no native timed
	// acquisition, so a size-1 channel stands in for one, letting lock()
	// use select+time.After instead of blocking forever.
	lockSem chan struct{}

	routeHashes      map[string]string // route.String() -> learned bucket hash
	buckets          map[string]*bucket
	scheduledWorkers map[string]bool
	globalDeadlineMs int64
	shuttingDown     bool

	// recency is a bounded index of bucket ids in creation order, used only
	// to log when a bucket that still has queued Work drops out of it once
	// more than MaxTrackedBuckets ids are tracked; the bucket map itself is
	// always the source of truth; recency never deletes a bucket.
	recency *lru.Cache[string, struct{}]

	cleanupStop chan struct{}

	cfg Config
}

var _ work.RateLimiter = &SequentialRateLimiter{}

// New builds a SequentialRateLimiter and starts its background cleanup
// sweep. Call Shutdown to stop it.
func New(cfg Config) *SequentialRateLimiter {
	cfg = cfg.withDefaults()

	rl := &SequentialRateLimiter{
		lockSem:          make(chan struct{}, 1),
		routeHashes:      make(map[string]string),
		buckets:          make(map[string]*bucket),
		scheduledWorkers: make(map[string]bool),
		cleanupStop:      make(chan struct{}),
		cfg:              cfg,
	}
	rl.recency, _ = lru.NewWithEvict[string, struct{}](cfg.MaxTrackedBuckets, rl.onEvict)

	go rl.cleanupLoop(cfg.CleanupInterval)
	return rl
}

// lock acquires the limiter's lock within lockTimeout, returning an
// InvalidState error on failure instead of hanging the caller forever.
func (rl *SequentialRateLimiter) lock() error {
	select {
	case rl.lockSem <- struct{}{}:
		return nil
	case <-time.After(lockTimeout):
		return rawferrors.New(rawferrors.InvalidState, "rate limiter lock not acquired within %s; lock may be corrupted", lockTimeout)
	}
}

func (rl *SequentialRateLimiter) unlock() {
	<-rl.lockSem
}

// onEvict fires when the recency index grows past MaxTrackedBuckets. It
// never removes anything from the bucket table itself — that stays the
// exclusive responsibility of cleanup, which only ever drops a bucket once
// its queue is empty and its limit window has expired — it just gives the
// operator visibility into sustained high route-parameter cardinality.
// recency is only touched with the limiter's lock held, so onEvict runs
// under that lock and must not take it again.
func (rl *SequentialRateLimiter) onEvict(id string, _ struct{}) {
	b, ok := rl.buckets[id]
	if ok && len(b.queue) > 0 {
		rl.cfg.Logger.Debugf("ratelimit: bucket %s aged out of the recency index while still queued", id)
	}
}

func (rl *SequentialRateLimiter) routeHash(r *route.Route) string {
	if h, ok := rl.routeHashes[r.String()]; ok {
		return h
	}
	return "unlimited+" + r.String()
}

func (rl *SequentialRateLimiter) bucketID(cr *route.CompiledRoute) string {
	return rl.routeHash(cr.BaseRoute()) + ":" + cr.MajorParamKey()
}

// getOrCreateBucket must be called with the limiter's lock held.
func (rl *SequentialRateLimiter) getOrCreateBucket(id string, cr *route.CompiledRoute) *bucket {
	if b, ok := rl.buckets[id]; ok {
		return b
	}
	hash := strings.TrimSuffix(id, ":"+cr.MajorParamKey())
	b := newBucket(id, hash, cr.MajorParamKey())
	rl.buckets[id] = b
	rl.recency.Add(id, struct{}{})
	return b
}

func (rl *SequentialRateLimiter) Queue(w *work.Work) error {
	if err := rl.lock(); err != nil {
		return err
	}
	if rl.shuttingDown {
		rl.unlock()
		return rawferrors.New(rawferrors.InvalidState, "rate limiter is shut down")
	}

	id := rl.bucketID(w.Route)
	b := rl.getOrCreateBucket(id, w.Route)
	b.queue = append(b.queue, w)

	needsSchedule := !rl.scheduledWorkers[id]
	if needsSchedule {
		rl.scheduledWorkers[id] = true
	}
	rl.unlock()

	if needsSchedule {
		rl.schedule(id)
	}
	return nil
}

// schedule launches a bucket worker from a caller goroutine — Queue's, never
// one the pool already owns. It may legitimately wait for a pool slot. It
// must never be called from inside runWorker itself: runWorker handles both
// a nonzero delay and a bucket-hash migration by sleeping or renaming the
// bucket id in place on the same goroutine, rather than asking the pool for
// a second concurrency slot while still holding the first — that would
// deadlock any bounded Pool the first time a worker needed to back off.
func (rl *SequentialRateLimiter) schedule(id string) {
	run := func() { rl.runWorker(id) }
	if rl.cfg.Pool != nil {
		rl.cfg.Pool.Go(run)
		return
	}
	go run()
}

// runWorker drains one bucket's FIFO, one Work at a time, until the queue
// empties.
func (rl *SequentialRateLimiter) runWorker(id string) {
	for {
		if err := rl.lock(); err != nil {
			rl.cfg.Logger.Errorf("ratelimit: bucket %s: %v", id, err)
			return
		}
		b, ok := rl.buckets[id]
		if !ok || len(b.queue) == 0 {
			rl.scheduledWorkers[id] = false
			rl.unlock()
			return
		}

		if d := b.delayMs(rl.globalDeadlineMs); d > 0 {
			rl.unlock()
			time.Sleep(time.Duration(d) * time.Millisecond)
			continue
		}

		w := b.queue[0]
		b.queue = b.queue[1:]

		if b.isUnlimited() {
			if realID := rl.bucketID(w.Route); realID != id {
				rest := append([]*work.Work{w}, b.queue...)
				b.queue = nil
				real := rl.getOrCreateBucket(realID, w.Route)
				real.queue = append(real.queue, rest...)
				rl.scheduledWorkers[id] = false

				if rl.scheduledWorkers[realID] {
					// Another worker already owns realID's queue; this
					// worker has nothing left to do under the old id.
					rl.unlock()
					return
				}
				rl.scheduledWorkers[realID] = true
				rl.unlock()
				id = realID
				continue
			}
		}
		rl.unlock()

		rl.dispatch(id, w)
	}
}

func (rl *SequentialRateLimiter) dispatch(bucketID string, w *work.Work) {
	if skipped, timedOut := w.IsSkipped(); skipped {
		if timedOut {
			w.Fail(rawferrors.New(rawferrors.Timeout, "work expired before it reached the front of its bucket"))
		} else {
			w.Fail(rawferrors.New(rawferrors.Cancelled, "work was cancelled or failed its check before dispatch"))
		}
		return
	}

	retryDelayMs, err := w.Execute()
	if err != nil {
		rl.cfg.Logger.Errorf("ratelimit: bucket %s: %v", bucketID, err)
	}
	if retryDelayMs <= 0 {
		return
	}

	if lockErr := rl.lock(); lockErr != nil {
		w.Fail(lockErr)
		return
	}
	if b, ok := rl.buckets[bucketID]; ok {
		b.queue = append([]*work.Work{w}, b.queue...)
	}
	rl.unlock()
}

func (rl *SequentialRateLimiter) GetDelayMs(cr *route.CompiledRoute) (int64, error) {
	if err := rl.lock(); err != nil {
		return 0, err
	}
	defer rl.unlock()

	id := rl.bucketID(cr)
	if b, ok := rl.buckets[id]; ok {
		return b.delayMs(rl.globalDeadlineMs), nil
	}
	d := rl.globalDeadlineMs - nowMs()
	if d < 0 {
		d = 0
	}
	return d, nil
}

func (rl *SequentialRateLimiter) HandleResponse(cr *route.CompiledRoute, resp *work.RestResponse) (int64, error) {
	if err := rl.lock(); err != nil {
		return 0, err
	}
	defer rl.unlock()

	headers := resp.Headers
	if hash := headers.Get("X-RateLimit-Bucket"); hash != "" {
		rl.routeHashes[cr.BaseRoute().String()] = hash
	}

	id := rl.bucketID(cr)
	now := nowMs()

	if resp.Code == 429 {
		retryAfterMs := parseSecondsToMs(headers.Get("Retry-After"))
		if retryAfterMs == 0 {
			retryAfterMs = resp.RetryAfterMs
		}
		// The body's own "retry_after" field (seconds, possibly fractional)
		// occasionally exceeds the header value; take whichever is larger
		// rather than trusting the header alone.
		if bodyMs := retryAfterFromBody(resp); bodyMs > retryAfterMs {
			retryAfterMs = bodyMs
		}
		b := rl.getOrCreateBucket(id, cr)
		if headers.Get("X-RateLimit-Global") != "" || headers.Get("Via") == "" {
			rl.globalDeadlineMs = now + retryAfterMs
			rl.cfg.Logger.Warnf("ratelimit: global rate limit hit, resuming in %dms", retryAfterMs)
		} else {
			b.remaining = 0
			b.resetAtMs = now + retryAfterMs
			rl.cfg.Logger.Warnf("ratelimit: bucket %s rate limited, resuming in %dms", id, retryAfterMs)
		}
		return b.delayMs(rl.globalDeadlineMs), nil
	}

	hash := headers.Get("X-RateLimit-Bucket")
	if hash == "" {
		return 0, nil
	}

	b := rl.getOrCreateBucket(id, cr)
	if limit, err := strconv.Atoi(headers.Get("X-RateLimit-Limit")); err == nil {
		b.limit = limit
	}
	if remaining, err := strconv.Atoi(headers.Get("X-RateLimit-Remaining")); err == nil {
		b.remaining = remaining
	}
	if rl.cfg.RelativeRateLimit {
		if secs, err := strconv.ParseFloat(headers.Get("X-RateLimit-Reset-After"), 64); err == nil {
			b.resetAtMs = now + int64(secs*1000)
		}
	} else if secs, err := strconv.ParseFloat(headers.Get("X-RateLimit-Reset"), 64); err == nil {
		b.resetAtMs = int64(secs * 1000)
	}
	return 0, nil
}

func (rl *SequentialRateLimiter) CancelAll() (int, error) {
	if err := rl.lock(); err != nil {
		return 0, err
	}
	defer rl.unlock()

	count := 0
	for _, b := range rl.buckets {
		for _, w := range b.queue {
			if !w.Priority && !w.IsCancelled() {
				w.Cancel()
				count++
			}
		}
	}
	return count, nil
}

func (rl *SequentialRateLimiter) Shutdown() error {
	if err := rl.lock(); err != nil {
		return err
	}
	if rl.shuttingDown {
		rl.unlock()
		return nil
	}
	rl.shuttingDown = true
	rl.unlock()

	close(rl.cleanupStop)
	return rl.cleanup()
}

func (rl *SequentialRateLimiter) cleanupLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := rl.cleanup(); err != nil {
				rl.cfg.Logger.Errorf("ratelimit: cleanup sweep: %v", err)
			}
		case <-rl.cleanupStop:
			return
		}
	}
}

func (rl *SequentialRateLimiter) cleanup() error {
	if err := rl.lock(); err != nil {
		return err
	}
	defer rl.unlock()

	now := nowMs()
	for id, b := range rl.buckets {
		if len(b.queue) != 0 {
			continue
		}
		if rl.shuttingDown || b.isUnlimited() || b.resetAtMs <= now {
			delete(rl.buckets, id)
			rl.recency.Remove(id)
		}
	}
	return nil
}

// parseSecondsToMs parses a Retry-After header expressed in fractional
// seconds; an empty or malformed header yields 0.
func parseSecondsToMs(v string) int64 {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int64(secs * 1000)
}

// retryAfterFromBody parses a JSON body's "retry_after" field (fractional
// seconds), returning 0 if the body isn't JSON or carries no such field.
func retryAfterFromBody(resp *work.RestResponse) int64 {
	m, err := resp.JSON()
	if err != nil || m == nil {
		return 0
	}
	switch v := m["retry_after"].(type) {
	case float64:
		return int64(v * 1000)
	default:
		return 0
	}
}
