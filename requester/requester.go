// Package requester performs the HTTP round trip behind a Work item: it
// assembles the request, retries on transient 502/504/529 responses with
// exponential backoff, transparently decompresses gzip/deflate bodies, and
// feeds every response back through the configured rate limiter before
// completing or failing the Work.
package requester

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	rawferrors "github.com/V-Play-Games/RAWF/errors"
	"github.com/V-Play-Games/RAWF/retry"
	"github.com/V-Play-Games/RAWF/route"
	"github.com/V-Play-Games/RAWF/work"
)

// Requester is the transport layer shared by every route this client calls.
type Requester struct {
	cfg Config
}

func New(cfg Config) *Requester {
	return &Requester{cfg: cfg.withDefaults()}
}

// Enqueue builds a Work item for cr, attaches this Requester's HTTP
// execution closure as its executor, and hands it to the configured rate
// limiter. onSuccess/onFailure fire at most once, per Work's contract.
// priority, deadlineMs, and check are applied to the Work before it is
// handed to the rate limiter, so a bucket worker never observes a Work
// with an unset attribute.
func (req *Requester) Enqueue(
	ctx context.Context,
	cr *route.CompiledRoute,
	body []byte,
	contentType string,
	headers map[string]string,
	priority bool,
	deadlineMs int64,
	check func() bool,
	onSuccess func(*work.RestResponse),
	onFailure func(error),
) (*work.Work, error) {
	w := work.New(cr, onSuccess, onFailure)
	w.Body = body
	w.ContentType = contentType
	w.Headers = headers
	w.Priority = priority
	w.Deadline = deadlineMs
	w.Check = check
	w.SetExecutor(func() (int64, error) { return req.execute(ctx, w) })

	if err := req.cfg.RateLimiter.Queue(w); err != nil {
		return nil, err
	}
	return w, nil
}

// execute is the Work's ExecuteFunc: up to four attempts, retrying only on
// a retriable HTTP status or a single transient transport failure, then
// routing the outcome through the rate limiter and the Work's callbacks.
func (req *Requester) execute(ctx context.Context, w *work.Work) (int64, error) {
	var resp *work.RestResponse
	var cfRays []string

	retryErr := req.cfg.Retry.Do(4, "requester.execute", func(attempt int) (error, retry.ExitStrategy) {
		if skipped, timedOut := w.IsSkipped(); skipped {
			if timedOut {
				return rawferrors.New(rawferrors.Timeout, "work expired mid-retry"), retry.StopNow
			}
			return rawferrors.New(rawferrors.Cancelled, "work cancelled mid-retry"), retry.StopNow
		}

		one, cfRay, err := req.doOnce(ctx, w)
		if cfRay != "" {
			cfRays = append(cfRays, cfRay)
		}
		if err != nil {
			if !req.cfg.RetryOnTimeout || ctx.Err() != nil || attempt > 0 {
				return err, retry.StopNow
			}
			// One retry is granted for a transient transport failure
			// (connection reset, DNS hiccup) that never produced a status
			// code at all.
			return err, retry.Continue
		}

		resp = one
		resp.CFRays = cfRays
		if isRetriableStatus(resp.Code) {
			return rawferrors.New(rawferrors.TransportError, "received retriable status %d", resp.Code), retry.Continue
		}
		return nil, retry.StopNow
	})

	if resp == nil {
		w.Fail(rawferrors.Wrap(rawferrors.TransportError, retryErr))
		return 0, retryErr
	}

	delayMs, err := req.cfg.RateLimiter.HandleResponse(w.Route, resp)
	if err != nil {
		w.Fail(err)
		return 0, err
	}
	if resp.IsRateLimit() && delayMs > 0 {
		return delayMs, nil
	}

	if resp.IsOk() {
		w.Complete(resp)
		return 0, nil
	}

	w.Fail(newAPIError(w.Route, resp))
	return 0, nil
}

func isRetriableStatus(code int) bool {
	return code == 502 || code == 504 || code == 529
}

func (req *Requester) doOnce(ctx context.Context, w *work.Work) (*work.RestResponse, string, error) {
	url := req.cfg.BaseURL + "/" + strings.TrimPrefix(w.Route.Path(), "/")

	var bodyReader io.Reader
	if len(w.Body) > 0 {
		bodyReader = bytes.NewReader(w.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(w.Route.Method()), url, bodyReader)
	if err != nil {
		return nil, "", rawferrors.Wrap(rawferrors.InvalidArgument, err)
	}

	if w.ContentType != "" {
		httpReq.Header.Set("Content-Type", w.ContentType)
	}
	httpReq.Header.Set("User-Agent", req.cfg.UserAgent)
	if req.cfg.AuthHeader != "" && w.Route.BaseRoute().RequiresAuth() {
		httpReq.Header.Set("Authorization", req.cfg.AuthHeader)
	}
	httpReq.Header.Set("Accept-Encoding", "gzip")
	httpReq.Header.Set("X-RateLimit-Precision", "millisecond")
	for k, v := range w.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.cfg.BeforeSend != nil {
		req.cfg.BeforeSend(httpReq)
	}

	httpResp, err := req.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		kind := rawferrors.TransportError
		if ctx.Err() == context.DeadlineExceeded {
			kind = rawferrors.Timeout
		} else if ctx.Err() == context.Canceled {
			kind = rawferrors.Cancelled
		}
		return nil, "", rawferrors.Wrap(kind, err)
	}
	defer httpResp.Body.Close()

	cfRay := httpResp.Header.Get("CF-RAY")

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, cfRay, rawferrors.Wrap(rawferrors.TransportError, err)
	}
	body := work.DecompressBody(httpResp.Header.Get("Content-Encoding"), raw)

	var cfRays []string
	if cfRay != "" {
		cfRays = []string{cfRay}
	}
	return work.NewOK(httpResp.StatusCode, httpResp.Header, body, parseSecondsToMs(httpResp.Header.Get("Retry-After")), cfRays), cfRay, nil
}

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

func newAPIError(cr *route.CompiledRoute, resp *work.RestResponse) error {
	kind := rawferrors.ApiError
	if resp.Code == 429 {
		kind = rawferrors.RateLimited
	}
	e := &rawferrors.Error{
		Kind:           kind,
		HttpStatusCode: resp.Code,
		Body:           resp.Body(),
		Route:          cr.BaseRoute().String(),
		RetryAfterMs:   resp.RetryAfterMs,
	}
	if m, jsonErr := resp.JSON(); jsonErr == nil && m != nil {
		if msg, ok := m["message"].(string); ok {
			e.Message = msg
		}
		if code, ok := m["code"].(float64); ok {
			e.ApiCode = int(code)
		}
		if rawErrors, ok := m["errors"].(map[string]any); ok {
			e.SchemaErrors = parseSchemaErrors(rawErrors)
		}
	}
	return e
}

// parseSchemaErrors walks the Discord-style nested "errors" object, where
// leaf nodes carry an "_errors" array of {code, message} pairs keyed by
// field path.
func parseSchemaErrors(m map[string]any) []rawferrors.SchemaError {
	var out []rawferrors.SchemaError
	var walk func(path string, v any)
	walk = func(path string, v any) {
		obj, ok := v.(map[string]any)
		if !ok {
			return
		}
		if leaf, ok := obj["_errors"].([]any); ok {
			se := rawferrors.SchemaError{Path: path}
			for _, le := range leaf {
				lm, ok := le.(map[string]any)
				if !ok {
					continue
				}
				code, _ := lm["code"].(string)
				msg, _ := lm["message"].(string)
				se.Errors = append(se.Errors, rawferrors.SchemaErrorDetail{Code: code, Message: msg})
			}
			out = append(out, se)
			return
		}
		for k, nested := range obj {
			next := k
			if path != "" {
				next = path + "." + k
			}
			walk(next, nested)
		}
	}
	walk("", m)
	return out
}
