package rawf

import (
	"net/http"
	"strings"
	"time"

	"github.com/V-Play-Games/RAWF/logger"
	"github.com/V-Play-Games/RAWF/ratelimit"
	"github.com/V-Play-Games/RAWF/restaction"
	"github.com/V-Play-Games/RAWF/work"
)

// RateLimiterFactory builds a work.RateLimiter from rate-limit config,
// letting a caller swap in an alternative scheduler entirely; the default
// produces a ratelimit.SequentialRateLimiter.
type RateLimiterFactory func(ratelimit.Config) work.RateLimiter

// RequestBuilderHook is invoked just before a request is sent, letting a
// caller inject arbitrary headers (signing, tracing, etc.) that neither the
// route nor the Work's own Headers cover.
type RequestBuilderHook func(req *http.Request)

type config struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    logger.Logger

	baseUrl            string
	userAgent          string
	authHeader         string
	rateLimiterFactory RateLimiterFactory
	customRequestBuilder RequestBuilderHook
	relativeRateLimit  bool
	retryOnTimeout     bool

	callbackPool  *restaction.CallbackPool
	rateLimitPool *ratelimit.Pool

	defaultSuccess func(*work.RestResponse)
	defaultFailure func(error)

	maxTrackedBuckets int
	majorParams       map[string]bool
}

func defaultConfig() *config {
	return &config{
		transport: http.DefaultTransport,
		timeout:   10 * time.Second,
		logger:    logger.Noop{},
		userAgent: "RAWF (https://github.com/V-Play-Games/RAWF)",
		rateLimiterFactory: func(cfg ratelimit.Config) work.RateLimiter {
			return ratelimit.New(cfg)
		},
	}
}

type ConfigOption func(c *config)

func WithTransport(transport http.RoundTripper) ConfigOption {
	return func(c *config) { c.transport = transport }
}

func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *config) { c.timeout = timeout }
}

func WithLogger(l logger.Logger) ConfigOption {
	return func(c *config) { c.logger = l }
}

// WithBaseUrl sets the API host every route is resolved against; it is
// normalized to end with exactly one trailing slash.
func WithBaseUrl(baseUrl string) ConfigOption {
	return func(c *config) { c.baseUrl = strings.TrimRight(baseUrl, "/") + "/" }
}

func WithUserAgent(userAgent string) ConfigOption {
	return func(c *config) { c.userAgent = userAgent }
}

// WithAuthHeader sets the Authorization header value sent on every request
// whose route requires authentication.
func WithAuthHeader(value string) ConfigOption {
	return func(c *config) { c.authHeader = value }
}

func WithRateLimiterFactory(factory RateLimiterFactory) ConfigOption {
	return func(c *config) { c.rateLimiterFactory = factory }
}

func WithRequestBuilder(hook RequestBuilderHook) ConfigOption {
	return func(c *config) { c.customRequestBuilder = hook }
}

// WithRelativeRateLimit switches bucket reset tracking to the relative
// X-RateLimit-Reset-After header instead of the absolute X-RateLimit-Reset
// epoch, avoiding clock-skew against the API host.
func WithRelativeRateLimit(relative bool) ConfigOption {
	return func(c *config) { c.relativeRateLimit = relative }
}

// WithRetryOnTimeout grants one extra retry after a first-attempt transport
// failure (no HTTP status obtained). The failure is not classified: any
// transport error, a DNS failure included, gets that one retry.
func WithRetryOnTimeout(retry bool) ConfigOption {
	return func(c *config) { c.retryOnTimeout = retry }
}

func WithCallbackPool(pool *restaction.CallbackPool) ConfigOption {
	return func(c *config) { c.callbackPool = pool }
}

func WithRateLimitPool(pool *ratelimit.Pool) ConfigOption {
	return func(c *config) { c.rateLimitPool = pool }
}

func WithDefaultCallbacks(onSuccess func(*work.RestResponse), onFailure func(error)) ConfigOption {
	return func(c *config) {
		c.defaultSuccess = onSuccess
		c.defaultFailure = onFailure
	}
}

// WithMaxTrackedBuckets bounds the rate limiter's idle-bucket recency
// index; see ratelimit.Config.MaxTrackedBuckets.
func WithMaxTrackedBuckets(n int) ConfigOption {
	return func(c *config) { c.maxTrackedBuckets = n }
}

// WithMajorParams overrides the default major-parameter set every Route
// built without its own route.WithMajorParams inherits.
func WithMajorParams(names map[string]bool) ConfigOption {
	return func(c *config) { c.majorParams = names }
}
