// Package route compiles placeholder-bearing URL templates into concrete,
// percent-encoded request paths and derives the rate-limit "major parameter"
// key used to scope buckets.
package route

import (
	"net/url"
	"strings"

	"github.com/V-Play-Games/RAWF/errors"
)

// Method is an HTTP verb recognized by a Route.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PUT    Method = "PUT"
	PATCH  Method = "PATCH"
	DELETE Method = "DELETE"
)

// DefaultMajorParams is the default set of placeholder names whose values
// scope a route to a distinct rate-limit bucket. A Route snapshots this set
// at construction time via WithMajorParams; mutating this map later never
// affects already-built routes.
var DefaultMajorParams = map[string]bool{
	"channel_id":        true,
	"guild_id":          true,
	"webhook_id":        true,
	"interaction_token": true,
}

// Route is an immutable template for a family of API calls that share the
// same rate-limit scope. Two routes are equal iff their method and template
// are equal.
type Route struct {
	method      Method
	template    string
	segments    []segment
	paramCount  int
	requireAuth bool
	majorParams map[string]bool
}

type segment struct {
	literal   string
	paramName string
	isParam   bool
}

// Option customizes Route construction.
type Option func(*Route)

// WithMajorParams overrides the major-parameter set used by Compile to
// derive the bucket-scoping key for this route.
func WithMajorParams(names map[string]bool) Option {
	return func(r *Route) {
		snapshot := make(map[string]bool, len(names))
		for k, v := range names {
			snapshot[k] = v
		}
		r.majorParams = snapshot
	}
}

// Custom builds a Route for an arbitrary method and template.
//
// template is a slash-delimited sequence of literal segments and
// "{name}" placeholder segments, e.g. "channels/{channel_id}/messages".
func Custom(method Method, template string, requireAuth bool, opts ...Option) *Route {
	r := &Route{
		method:      method,
		template:    template,
		requireAuth: requireAuth,
	}
	WithMajorParams(DefaultMajorParams)(r)
	for _, part := range strings.Split(template, "/") {
		if len(part) > 1 && part[0] == '{' && part[len(part)-1] == '}' {
			r.segments = append(r.segments, segment{paramName: part[1 : len(part)-1], isParam: true})
			r.paramCount++
		} else {
			r.segments = append(r.segments, segment{literal: part})
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func Get(template string, requireAuth bool, opts ...Option) *Route    { return Custom(GET, template, requireAuth, opts...) }
func Post(template string, requireAuth bool, opts ...Option) *Route   { return Custom(POST, template, requireAuth, opts...) }
func Put(template string, requireAuth bool, opts ...Option) *Route    { return Custom(PUT, template, requireAuth, opts...) }
func Patch(template string, requireAuth bool, opts ...Option) *Route  { return Custom(PATCH, template, requireAuth, opts...) }
func Delete(template string, requireAuth bool, opts ...Option) *Route { return Custom(DELETE, template, requireAuth, opts...) }

func (r *Route) Method() Method      { return r.method }
func (r *Route) Template() string    { return r.template }
func (r *Route) ParamCount() int     { return r.paramCount }
func (r *Route) RequiresAuth() bool  { return r.requireAuth }
func (r *Route) String() string      { return string(r.method) + "/" + r.template }

// Equals reports whether two routes share method and template; this is the
// full equality contract (routes never carry identity beyond those two
// fields).
func (r *Route) Equals(other *Route) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return r.method == other.method && r.template == other.template
}

// Compile substitutes args, in order, for the route's placeholder segments.
// len(args) must equal ParamCount().
func (r *Route) Compile(args ...string) (*CompiledRoute, error) {
	if len(args) != r.paramCount {
		return nil, errors.New(errors.InvalidArgument, "route %s expects %d parameters, got %d", r, r.paramCount, len(args))
	}

	var path strings.Builder
	var majorKey strings.Builder
	argIdx := 0
	for i, seg := range r.segments {
		if i > 0 {
			path.WriteByte('/')
		}
		if !seg.isParam {
			path.WriteString(seg.literal)
			continue
		}
		value := args[argIdx]
		argIdx++
		path.WriteString(encodeUTF8(value))
		if r.majorParams[seg.paramName] {
			majorKey.WriteString(value)
		}
	}

	major := majorKey.String()
	if major == "" {
		major = "N/A"
	}

	return &CompiledRoute{baseRoute: r, path: path.String(), majorParamKey: major}, nil
}

// encodeUTF8 percent-encodes s the way a URL path segment would be encoded
// (space becomes %20, not "+").
func encodeUTF8(s string) string {
	return url.PathEscape(s)
}
