package ratelimit

import (
	rawferrors "github.com/V-Play-Games/RAWF/errors"
	"github.com/V-Play-Games/RAWF/route"
	"github.com/V-Play-Games/RAWF/work"
)

// Noop dispatches every Work immediately on its own goroutine, applying no
// rate limiting whatsoever. Useful for tests and for callers targeting a
// host that enforces no per-route limits.
type Noop struct{}

var _ work.RateLimiter = Noop{}

func (Noop) Queue(w *work.Work) error {
	go func() {
		if skipped, timedOut := w.IsSkipped(); skipped {
			if timedOut {
				w.Fail(rawferrors.New(rawferrors.Timeout, "work expired before dispatch"))
			} else {
				w.Fail(rawferrors.New(rawferrors.Cancelled, "work was cancelled or failed its check before dispatch"))
			}
			return
		}
		_, _ = w.Execute() // Noop never retries; the executor reports terminal failures via w.Fail.
	}()
	return nil
}

func (Noop) GetDelayMs(_ *route.CompiledRoute) (int64, error) { return 0, nil }
func (Noop) HandleResponse(_ *route.CompiledRoute, _ *work.RestResponse) (int64, error) {
	return 0, nil
}
func (Noop) CancelAll() (int, error) { return 0, nil }
func (Noop) Shutdown() error         { return nil }
