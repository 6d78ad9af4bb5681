package ratelimit

import (
	"strings"
	"time"

	"github.com/V-Play-Games/RAWF/work"
)

// bucket is the unit of sequential, rate-limited dispatch. All access is
// serialized by SequentialRateLimiter's mutex; a bucket holds no lock of
// its own.
type bucket struct {
	id       string
	hash     string
	majorKey string

	limit     int
	remaining int
	resetAtMs int64

	queue []*work.Work
}

func newBucket(id, hash, majorKey string) *bucket {
	return &bucket{id: id, hash: hash, majorKey: majorKey, limit: 1, remaining: 1}
}

func (b *bucket) isUnlimited() bool {
	return strings.HasPrefix(b.hash, "unlimited+")
}

// delayMs implements the spec's Bucket.delayMs formula, refreshing
// `remaining` to `limit` as a side effect whenever the reset deadline has
// already passed.
func (b *bucket) delayMs(globalDeadlineMs int64) int64 {
	now := nowMs()

	d := globalDeadlineMs - now
	if d < 0 {
		d = 0
	}

	if b.resetAtMs <= now {
		b.remaining = b.limit
	}
	if b.remaining < 1 {
		rd := b.resetAtMs - now
		if rd < 0 {
			rd = 0
		}
		if rd > d {
			d = rd
		}
	}
	return d
}

func nowMs() int64 { return time.Now().UnixMilli() }
