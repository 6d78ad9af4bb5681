package retry

import (
	"fmt"
	"time"

	retrygo "github.com/avast/retry-go/v5"

	"github.com/V-Play-Games/RAWF/logger"
)

type expoConfig struct {
	sleep  time.Duration
	logger logger.Logger
}

func defaultExpoConfig() expoConfig {
	return expoConfig{
		sleep:  50 * time.Millisecond,
		logger: &logger.Noop{},
	}
}

type ExpoConfigOption func(c *expoConfig)

func WithLogger(log logger.Logger) ExpoConfigOption {
	return func(c *expoConfig) {
		c.logger = log
	}
}

func WithInitialDuration(d time.Duration) ExpoConfigOption {
	return func(c *expoConfig) {
		c.sleep = d
	}
}

// expoRetry implements Retry with exponential backoff on top of
// avast/retry-go/v5: each RetriableFn invocation is a retry-go attempt, and
// the caller's ExitStrategy is translated into retry-go's RetryIf predicate
// rather than its Unrecoverable wrapper, so the error Do returns is exactly
// the one the caller's RetriableFn produced, never re-wrapped.
type expoRetry struct {
	config expoConfig
}

var _ Retry = &expoRetry{}

func NewExponentialRetry(opts ...ExpoConfigOption) Retry {
	var config = defaultExpoConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &expoRetry{config}
}

// Do runs provided function repeatedly until:
// * the RetriableFn returns no error
// * or attempts is reached
// * or RetriableFn returns StopNow
// Examples:
// Do(3, "my-func", func(attempt int) (error, retry.ExitStrategy) {})
// ^ will run the function 3 times, sleeping 0ms, 50ms, 100ms before each run.
//
// Do(0, "my-func", func(attempt int) (error, retry.ExitStrategy) {})
// ^ will NOT run
func (r *expoRetry) Do(
	attempts int,
	fnName string,
	fn RetriableFn,
) error {
	if attempts < 1 {
		return fmt.Errorf("attempts must be > 0")
	}

	i := 0
	exitNow := false

	err := retrygo.New(
		retrygo.Attempts(uint(attempts)),
		retrygo.RetryIf(func(error) bool { return !exitNow }),
		retrygo.DelayType(func(n uint, _ error, _ retrygo.DelayContext) time.Duration {
			// retry-go numbers retries from 1; initial*2^(n-1) reproduces
			// the doubling sequence 50ms, 100ms, 200ms...
			return r.config.sleep * time.Duration(uint64(1)<<(n-1))
		}),
		retrygo.OnRetry(func(n uint, err error) {
			r.config.logger.Warnf(
				"Error during retry %s; retrying. attempt=%d, maxAttempt=%d, error=%v",
				fnName, n-1, attempts, err,
			)
		}),
		retrygo.LastErrorOnly(true),
	).Do(
		func() error {
			fnErr, exit := fn(i)
			exitNow = bool(exit)
			i++
			return fnErr
		},
	)
	if err == nil {
		return nil
	}
	if exitNow {
		return err
	}

	r.config.logger.Warnf(
		"Exhausted all retry attempts for %s; giving up. attempt=%d, maxAttempt=%d, error=%v",
		fnName, i, attempts, err,
	)

	return err
}
