package work

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
)

// RestResponse is either a completed HTTP exchange (Code/Headers/body) or a
// transport failure (Err). The body is read eagerly (the underlying
// http.Response.Body is closed by the requester before the Work's Complete
// or Fail is called) but JSON-decoded lazily, on first call to JSON.
type RestResponse struct {
	Code         int
	Message      string
	Headers      http.Header
	RetryAfterMs int64
	CFRays       []string
	Err          error

	rawBody []byte
	mu      sync.Mutex
	parsed  map[string]any
	parseOK bool
}

// NewOK builds a RestResponse from a completed HTTP exchange. body has
// already had gzip/deflate transparently decoded by the caller, or, on
// decompression failure, is the raw compressed payload (diagnostic
// fallback).
func NewOK(code int, headers http.Header, body []byte, retryAfterMs int64, cfRays []string) *RestResponse {
	return &RestResponse{Code: code, Headers: headers, rawBody: body, RetryAfterMs: retryAfterMs, CFRays: cfRays}
}

// NewError builds a RestResponse representing a transport-level failure
// (no HTTP status was ever obtained).
func NewError(err error, cfRays []string) *RestResponse {
	return &RestResponse{Err: err, CFRays: cfRays}
}

func (r *RestResponse) IsOk() bool        { return r.Err == nil && r.Code >= 200 && r.Code < 300 }
func (r *RestResponse) IsRateLimit() bool { return r.Err == nil && r.Code == 429 }
func (r *RestResponse) IsError() bool     { return r.Err != nil }

// Body returns the raw response body.
func (r *RestResponse) Body() []byte { return r.rawBody }

// JSON lazily unmarshals the body as a JSON object and caches the result.
func (r *RestResponse) JSON() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.parseOK {
		return r.parsed, nil
	}
	if len(r.rawBody) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.rawBody, &m); err != nil {
		return nil, err
	}
	r.parsed, r.parseOK = m, true
	return m, nil
}

// Decode unmarshals the body into v.
func (r *RestResponse) Decode(v any) error {
	return json.Unmarshal(r.rawBody, v)
}

// DecompressBody transparently inflates a gzip or deflate encoded body
// based on the Content-Encoding header. On failure it returns the raw
// bytes unchanged, for diagnostic surfacing rather than a hard error.
func DecompressBody(contentEncoding string, body []byte) []byte {
	switch strings.ToLower(contentEncoding) {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return body
		}
		return out
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		out, err := io.ReadAll(fr)
		if err != nil {
			return body
		}
		return out
	default:
		return body
	}
}
