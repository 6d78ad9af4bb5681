package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Play-Games/RAWF/route"
	"github.com/V-Play-Games/RAWF/work"
)

func testRoute(t *testing.T) *route.CompiledRoute {
	r := route.Get("channels/{channel_id}/messages", true)
	cr, err := r.Compile("123")
	require.NoError(t, err)
	return cr
}

func newTestLimiter() *SequentialRateLimiter {
	return New(Config{CleanupInterval: time.Hour})
}

func queueAndWait(t *testing.T, rl *SequentialRateLimiter, cr *route.CompiledRoute, execute func() (int64, error)) *work.Work {
	done := make(chan struct{})
	w := work.New(cr, func(*work.RestResponse) { close(done) }, func(error) { close(done) })
	w.SetExecutor(func() (int64, error) {
		delay, err := execute()
		if delay <= 0 {
			if err != nil {
				w.Fail(err)
			} else {
				w.Complete(work.NewOK(200, nil, nil, 0, nil))
			}
		}
		return delay, err
	})
	require.NoError(t, rl.Queue(w))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("work never completed")
	}
	return w
}

func Test_Queue_dispatchesImmediatelyWhenUnlimited(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)

	var ran atomic.Bool
	queueAndWait(t, rl, cr, func() (int64, error) {
		ran.Store(true)
		return 0, nil
	})
	assert.True(t, ran.Load())
}

func Test_Queue_perBucketFIFO(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		w := work.New(cr, func(*work.RestResponse) { wg.Done() }, func(error) { wg.Done() })
		w.SetExecutor(func() (int64, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			w.Complete(work.NewOK(200, nil, nil, 0, nil))
			return 0, nil
		})
		require.NoError(t, rl.Queue(w))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every queued work completed")
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func Test_Queue_rejectsAfterShutdown(t *testing.T) {
	rl := newTestLimiter()
	require.NoError(t, rl.Shutdown())

	w := work.New(testRoute(t), nil, nil)
	err := rl.Queue(w)
	assert.Error(t, err)
}

func Test_HandleResponse_learnsBucketAndLimits(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)

	h := http.Header{}
	h.Set("X-RateLimit-Bucket", "abcd")
	h.Set("X-RateLimit-Limit", "5")
	h.Set("X-RateLimit-Remaining", "4")
	h.Set("X-RateLimit-Reset", strconv.FormatFloat(float64(time.Now().Add(time.Hour).Unix()), 'f', 3, 64))

	resp := work.NewOK(200, h, nil, 0, nil)
	delay, err := rl.HandleResponse(cr, resp)
	require.NoError(t, err)
	assert.Zero(t, delay)

	id := rl.bucketID(cr)
	require.NoError(t, rl.lock())
	b := rl.buckets[id]
	rl.unlock()
	require.NotNil(t, b)
	assert.Equal(t, 5, b.limit)
	assert.Equal(t, 4, b.remaining)
	assert.False(t, b.isUnlimited())
}

func Test_HandleResponse_bucketRateLimit_delaysSubsequentWork(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)

	h := http.Header{}
	h.Set("X-RateLimit-Bucket", "abcd")
	h.Set("Via", "1.1 google")
	h.Set("Retry-After", "0.05")

	resp := work.NewOK(429, h, nil, 0, nil)
	delay, err := rl.HandleResponse(cr, resp)
	require.NoError(t, err)
	assert.Greater(t, delay, int64(0))
	assert.LessOrEqual(t, delay, int64(100))
}

func Test_HandleResponse_globalRateLimit_blocksAllBuckets(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)

	h := http.Header{}
	h.Set("X-RateLimit-Global", "true")
	h.Set("Retry-After", "0.05")
	resp := work.NewOK(429, h, nil, 0, nil)
	_, err := rl.HandleResponse(cr, resp)
	require.NoError(t, err)

	otherRoute := route.Get("guilds/{guild_id}", true)
	otherCR, err := otherRoute.Compile("999")
	require.NoError(t, err)

	delay, err := rl.GetDelayMs(otherCR)
	require.NoError(t, err)
	assert.Greater(t, delay, int64(0))
}

func Test_CancelAll_skipsPriorityWork(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)

	// Saturate the bucket so the next Queue calls land in the FIFO rather
	// than dispatching immediately.
	block := make(chan struct{})
	started := make(chan struct{})
	blocker := work.New(cr, nil, nil)
	blocker.SetExecutor(func() (int64, error) {
		close(started)
		<-block
		return 0, nil
	})
	require.NoError(t, rl.Queue(blocker))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocker never dispatched")
	}

	normal := work.New(cr, nil, nil)
	normal.SetExecutor(func() (int64, error) { return 0, nil })
	require.NoError(t, rl.Queue(normal))

	priority := work.New(cr, nil, nil)
	priority.Priority = true
	priority.SetExecutor(func() (int64, error) { return 0, nil })
	require.NoError(t, rl.Queue(priority))

	cancelled, err := rl.CancelAll()
	require.NoError(t, err)
	close(block)

	assert.Equal(t, 1, cancelled)
	assert.True(t, normal.IsCancelled())
	assert.False(t, priority.IsCancelled())
}

func Test_Cleanup_dropsOnlyIdleExpiredBuckets(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)
	id := rl.bucketID(cr)

	require.NoError(t, rl.lock())
	b := rl.getOrCreateBucket(id, cr)
	b.hash = "learned"
	b.resetAtMs = nowMs() - 1000
	rl.unlock()

	require.NoError(t, rl.cleanup())

	require.NoError(t, rl.lock())
	_, stillThere := rl.buckets[id]
	rl.unlock()
	assert.False(t, stillThere)
}

func Test_Cleanup_keepsBucketsWithQueuedWork(t *testing.T) {
	rl := newTestLimiter()
	cr := testRoute(t)
	id := rl.bucketID(cr)

	require.NoError(t, rl.lock())
	b := rl.getOrCreateBucket(id, cr)
	b.hash = "learned"
	b.resetAtMs = nowMs() - 1000
	b.queue = append(b.queue, work.New(cr, nil, nil))
	rl.unlock()

	require.NoError(t, rl.cleanup())

	require.NoError(t, rl.lock())
	_, stillThere := rl.buckets[id]
	rl.unlock()
	assert.True(t, stillThere)
}

// Test_Queue_boundedPoolSurvivesBackoff exercises a single-slot Pool
// (NewPool(1)) against a route that 429s once: the bucket worker that
// observes the delay must back off in place rather than asking the pool
// for a second slot while still holding its first, or this test never
// reaches its done channel.
func Test_Queue_boundedPoolSurvivesBackoff(t *testing.T) {
	rl := New(Config{CleanupInterval: time.Hour, Pool: NewPool(1)})
	cr := testRoute(t)

	var attempts atomic.Int32
	done := make(chan struct{})
	w := work.New(cr, nil, nil)
	w.SetExecutor(func() (int64, error) {
		if attempts.Add(1) == 1 {
			h := http.Header{}
			h.Set("Via", "1.1 google")
			h.Set("Retry-After", "0.02")
			return rl.HandleResponse(cr, work.NewOK(429, h, nil, 0, nil))
		}
		close(done)
		return 0, nil
	})
	require.NoError(t, rl.Queue(w))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("work never completed; bounded pool deadlocked on backoff")
	}
	assert.Equal(t, int32(2), attempts.Load())
}

// Test_Queue_boundedPoolSurvivesBucketMigration exercises the same
// single-slot Pool across an unlimited→real-bucket migration, the other
// path runWorker must resolve without asking the pool for a second slot.
func Test_Queue_boundedPoolSurvivesBucketMigration(t *testing.T) {
	rl := New(Config{CleanupInterval: time.Hour, Pool: NewPool(1)})
	cr := testRoute(t)

	h := http.Header{}
	h.Set("X-RateLimit-Bucket", "migrated")
	h.Set("X-RateLimit-Limit", "5")
	h.Set("X-RateLimit-Remaining", "4")
	h.Set("X-RateLimit-Reset", strconv.FormatFloat(float64(time.Now().Add(time.Hour).Unix()), 'f', 3, 64))

	var completed atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		w := work.New(cr, nil, nil)
		w.SetExecutor(func() (int64, error) {
			_, err := rl.HandleResponse(cr, work.NewOK(200, h, nil, 0, nil))
			if completed.Add(1) == 3 {
				close(done)
			}
			return 0, err
		})
		require.NoError(t, rl.Queue(w))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("work never completed; bounded pool deadlocked on bucket migration")
	}
}

func Test_Noop_dispatchesWithoutLimiting(t *testing.T) {
	var n Noop
	done := make(chan struct{})
	w := work.New(testRoute(t), func(*work.RestResponse) { close(done) }, func(error) { close(done) })
	w.SetExecutor(func() (int64, error) {
		w.Complete(work.NewOK(200, nil, nil, 0, nil))
		return 0, nil
	})
	require.NoError(t, n.Queue(w))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("noop never dispatched")
	}
}
