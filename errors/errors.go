// Package errors provides the tagged error taxonomy shared by every
// component of the runtime: routes, the rate limiter, the requester, rest
// actions, and the paginator all fail with one of the Kind values below so
// that a caller's ErrorHandler can dispatch on cause rather than on string
// matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind tags the category of a runtime Error, mirroring the taxonomy a
// caller's ErrorHandler dispatches on.
type Kind string

const (
	TransportError  Kind = "transport-error"
	Timeout         Kind = "timeout"
	Cancelled       Kind = "cancelled"
	RateLimited     Kind = "rate-limited"
	ApiError        Kind = "api-error"
	Parsing         Kind = "parsing"
	InvalidState    Kind = "invalid-state"
	InvalidArgument Kind = "invalid-argument"
)

// SchemaError is a single field-level validation failure reported by the
// remote API alongside a 4xx ApiError.
type SchemaError struct {
	Path   string
	Errors []SchemaErrorDetail
}

type SchemaErrorDetail struct {
	Code    string
	Message string
}

// Error is the concrete error type produced by this module. It always
// carries a Kind and wraps the underlying cause, if any, so that
// errors.Is/errors.As chains through to it.
type Error struct {
	Kind Kind

	// HTTP / API-level detail, populated for Kind == ApiError or RateLimited.
	HttpStatusCode int
	ApiCode        int
	Message        string
	SchemaErrors   []SchemaError
	RetryAfterMs   int64
	Route          string

	// Body is the raw response body, retained for diagnostics when the
	// body could not be parsed into the expected shape.
	Body []byte

	Cause error
}

var _ error = &Error{}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, &Error{Kind: X}) to test only the Kind,
// ignoring every other field — the same loose-comparison convention the
// original ApiError type used for errors.Is(err, &ApiError{}).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == "" || other.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// handlerCase is one (predicate, consumer) entry in a Handler's chain.
type handlerCase struct {
	match   func(error) bool
	handler func(error)
}

// Handler is an ordered predicate chain for failure callbacks: each
// registered case whose predicate matches err runs, in registration order,
// and the base consumer then always runs afterward regardless of whether
// any case matched. This mirrors the accept-every-matching-case-then-base
// semantic of the original ErrorHandler this package's error taxonomy is
// modeled on.
type Handler struct {
	base  func(error)
	cases []handlerCase
}

// NewHandler builds a Handler with base as its unconditional final
// consumer. A nil base is replaced with a no-op.
func NewHandler(base func(error)) *Handler {
	if base == nil {
		base = func(error) {}
	}
	return &Handler{base: base}
}

// Ignore registers a case with a no-op consumer for errors of the given
// kinds. It does not stop other matching cases from running, and the base
// consumer still runs afterward — callers who want a kind fully silenced
// should build their base consumer to skip it too.
func (h *Handler) Ignore(kinds ...Kind) *Handler {
	return h.Handle(func(err error) bool {
		for _, k := range kinds {
			if IsKind(err, k) {
				return true
			}
		}
		return false
	}, func(error) {})
}

// Handle registers a (predicate, handler) case. Cases run in registration
// order; every matching case runs, not just the first.
func (h *Handler) Handle(match func(error) bool, handler func(error)) *Handler {
	h.cases = append(h.cases, handlerCase{match: match, handler: handler})
	return h
}

// HandleKind is a convenience over Handle that matches by Kind via
// errors.Is/IsKind.
func (h *Handler) HandleKind(kind Kind, handler func(error)) *Handler {
	return h.Handle(func(err error) bool { return IsKind(err, kind) }, handler)
}

// Accept runs every case whose predicate matches err, then unconditionally
// runs the base consumer.
func (h *Handler) Accept(err error) {
	for _, c := range h.cases {
		if c.match(err) {
			c.handler(err)
		}
	}
	h.base(err)
}
