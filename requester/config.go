package requester

import (
	"net/http"
	"time"

	"github.com/V-Play-Games/RAWF/logger"
	"github.com/V-Play-Games/RAWF/retry"
	"github.com/V-Play-Games/RAWF/work"
)

const defaultBackoff = 500 * time.Millisecond

// Config wires a Requester to its transport, authentication, and the rate
// limiter/retry policy governing every call it makes.
type Config struct {
	HTTPClient *http.Client
	BaseURL    string
	UserAgent  string

	// AuthHeader, when non-empty, is sent verbatim as the Authorization
	// header on every request whose route requires authentication.
	AuthHeader string

	RateLimiter work.RateLimiter
	Retry       retry.Retry
	Logger      logger.Logger

	// RetryOnTimeout grants one extra retry for a first-attempt transient
	// transport failure (no status code was ever obtained).
	RetryOnTimeout bool

	// BeforeSend, if set, is invoked on every outgoing *http.Request right
	// before it is sent, after every default and Work-supplied header has
	// already been applied — an escape hatch for request signing or
	// tracing headers neither of those cover.
	BeforeSend func(*http.Request)
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://discord.com/api/v10"
	}
	if c.UserAgent == "" {
		c.UserAgent = "RAWF (https://github.com/V-Play-Games/RAWF, v10)"
	}
	if c.RateLimiter == nil {
		c.RateLimiter = noopLimiter{}
	}
	if c.Retry == nil {
		c.Retry = retry.NewExponentialRetry(retry.WithInitialDuration(defaultBackoff))
	}
	if c.Logger == nil {
		c.Logger = &logger.Noop{}
	}
	return c
}
