package ratelimit

import (
	"time"

	"github.com/V-Play-Games/RAWF/logger"
)

// Config controls a SequentialRateLimiter.
type Config struct {
	// RelativeRateLimit switches bucket reset tracking from the absolute
	// X-RateLimit-Reset epoch header to the relative X-RateLimit-Reset-After
	// header, avoiding clock-skew between this process and the API host.
	RelativeRateLimit bool

	// MaxTrackedBuckets sizes the recency index of bucket ids; 0 uses a
	// default of 100,000. When the index is full, the oldest id drops out of
	// it and, if that bucket still has queued Work, a debug line is logged.
	// It does not bound the bucket table itself: buckets are removed only by
	// the cleanup sweep.
	MaxTrackedBuckets int

	// CleanupInterval is how often idle, expired buckets are swept from the
	// bucket table; 0 uses 30s.
	CleanupInterval time.Duration

	// Pool bounds bucket-worker concurrency; nil runs each worker on its own
	// goroutine.
	Pool *Pool

	Logger logger.Logger
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = &logger.Noop{}
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 30 * time.Second
	}
	if c.MaxTrackedBuckets <= 0 {
		c.MaxTrackedBuckets = 100_000
	}
	return c
}
