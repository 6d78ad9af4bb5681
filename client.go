// Package rawf is a rate-limit-aware REST client runtime: compile a Route,
// hand it to Client.Do to get a RestAction, and either Queue, Submit, or
// Complete it. The client never runs a request beyond what the rate
// limiter allows, and every callback fires at most once.
package rawf

import (
	"context"
	"net/http"
	"strings"

	"github.com/V-Play-Games/RAWF/ratelimit"
	"github.com/V-Play-Games/RAWF/requester"
	"github.com/V-Play-Games/RAWF/restaction"
	"github.com/V-Play-Games/RAWF/route"
	"github.com/V-Play-Games/RAWF/work"
)

// Client is the entry point for issuing rate-limited requests against a
// single API host.
type Client struct {
	cfg       *config
	req       *requester.Requester
	limiter   work.RateLimiter
	majorParams map[string]bool
}

// NewClient builds a Client. baseUrl and userAgent are required; every
// other field has a documented default (see ConfigOption).
func NewClient(baseUrl, userAgent string, opts ...ConfigOption) *Client {
	cfg := defaultConfig()
	cfg.baseUrl = baseUrl
	cfg.userAgent = userAgent
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.baseUrl == "" {
		panic("rawf: baseUrl is required")
	}
	if cfg.userAgent == "" {
		panic("rawf: userAgent is required")
	}
	cfg.baseUrl = strings.TrimRight(cfg.baseUrl, "/") + "/"

	httpClient := &http.Client{Transport: cfg.transport, Timeout: cfg.timeout}

	rateLimitPool := cfg.rateLimitPool
	if rateLimitPool == nil {
		rateLimitPool = ratelimit.NewPool(0)
	}

	limiter := cfg.rateLimiterFactory(ratelimit.Config{
		RelativeRateLimit: cfg.relativeRateLimit,
		MaxTrackedBuckets: cfg.maxTrackedBuckets,
		Pool:              rateLimitPool,
		Logger:            cfg.logger,
	})

	req := requester.New(requester.Config{
		HTTPClient:     httpClient,
		BaseURL:        strings.TrimSuffix(cfg.baseUrl, "/"),
		UserAgent:      cfg.userAgent,
		AuthHeader:     cfg.authHeader,
		RateLimiter:    limiter,
		Logger:         cfg.logger,
		RetryOnTimeout: cfg.retryOnTimeout,
		BeforeSend:     cfg.customRequestBuilder,
	})

	majorParams := cfg.majorParams
	if majorParams == nil {
		majorParams = route.DefaultMajorParams
	}

	return &Client{cfg: cfg, req: req, limiter: limiter, majorParams: majorParams}
}

// MajorParams is the major-parameter set new routes built via Client.Route
// inherit unless overridden with an explicit route.WithMajorParams option.
func (c *Client) MajorParams() map[string]bool { return c.majorParams }

// Route builds a Route scoped by this client's configured major-parameter
// set (see WithMajorParams), rather than the package-level default;
// pass an explicit route.WithMajorParams option to override it further.
func (c *Client) Route(method route.Method, template string, requireAuth bool, opts ...route.Option) *route.Route {
	return route.Custom(method, template, requireAuth, append([]route.Option{route.WithMajorParams(c.majorParams)}, opts...)...)
}

// Do returns a RestAction for a single call against cr. body/contentType
// are sent verbatim; headers are applied after the client's defaults and
// override them. The action is not dispatched until one of its terminal
// methods (Queue/Submit/Complete) is called; until then, Priority/Deadline/
// Check may be used to configure how the rate limiter treats the
// underlying Work. Cancel may be called before or after a terminal method:
// it marks the underlying Work cancelled, so the rate limiter skips it if
// it has not been sent yet; a request already in flight is not aborted.
func (c *Client) Do(ctx context.Context, cr *route.CompiledRoute, body []byte, contentType string, headers map[string]string) *restaction.RestAction[*work.RestResponse] {
	var action *restaction.RestAction[*work.RestResponse]
	action = restaction.New(ctx, func(ctx context.Context) (*work.RestResponse, error) {
		type outcome struct {
			resp *work.RestResponse
			err  error
		}
		ch := make(chan outcome, 1)

		priority, deadlineMs, check := action.Attrs()
		w, err := c.req.Enqueue(ctx, cr, body, contentType, headers, priority, deadlineMs, check,
			func(resp *work.RestResponse) { ch <- outcome{resp: resp} },
			func(err error) { ch <- outcome{err: err} },
		)
		if err != nil {
			return nil, err
		}
		action.OnCancel(w.Cancel)

		select {
		case o := <-ch:
			return o.resp, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return action
}

// QueueDefault dispatches action using the client's configured callback
// pool (if any) and its default success/failure callbacks, falling back to
// an unbounded goroutine when no pool was configured via
// WithCallbackPool.
func (c *Client) QueueDefault(action *restaction.RestAction[*work.RestResponse]) {
	if c.cfg.callbackPool != nil {
		restaction.QueueOn(action, c.cfg.callbackPool, c.cfg.defaultSuccess, c.cfg.defaultFailure)
		return
	}
	action.Queue(c.cfg.defaultSuccess, c.cfg.defaultFailure)
}

// CancelAll cancels every non-priority, not-yet-dispatched request queued
// across every bucket and returns how many were cancelled.
func (c *Client) CancelAll() (int, error) { return c.limiter.CancelAll() }

// Shutdown stops the rate limiter's background cleanup sweep and rejects
// further requests.
func (c *Client) Shutdown() error { return c.limiter.Shutdown() }
