package requester

import (
	"github.com/V-Play-Games/RAWF/route"
	"github.com/V-Play-Games/RAWF/work"
)

// noopLimiter is Config's fallback when no rate limiter is supplied: every
// Work dispatches on its own goroutine, unthrottled. Real callers should
// wire package ratelimit's SequentialRateLimiter instead.
type noopLimiter struct{}

var _ work.RateLimiter = noopLimiter{}

func (noopLimiter) Queue(w *work.Work) error {
	go func() { _, _ = w.Execute() }()
	return nil
}

func (noopLimiter) GetDelayMs(_ *route.CompiledRoute) (int64, error) { return 0, nil }
func (noopLimiter) HandleResponse(_ *route.CompiledRoute, _ *work.RestResponse) (int64, error) {
	return 0, nil
}
func (noopLimiter) CancelAll() (int, error) { return 0, nil }
func (noopLimiter) Shutdown() error         { return nil }
