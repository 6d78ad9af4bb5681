package route

import (
	"net/url"

	"github.com/V-Play-Games/RAWF/errors"
)

// CompiledRoute is an immutable, fully-substituted Route: a concrete path,
// an optional query string, and the major-parameter key that scopes it to a
// rate-limit bucket.
type CompiledRoute struct {
	baseRoute     *Route
	path          string
	query         []string // "key=encodedValue" pairs, in append order
	majorParamKey string
}

func (c *CompiledRoute) BaseRoute() *Route      { return c.baseRoute }
func (c *CompiledRoute) Method() Method         { return c.baseRoute.method }
func (c *CompiledRoute) MajorParamKey() string  { return c.majorParamKey }

// Path returns the resolved path including any query string.
func (c *CompiledRoute) Path() string {
	if len(c.query) == 0 {
		return c.path
	}
	path := c.path + "?"
	for i, kv := range c.query {
		if i > 0 {
			path += "&"
		}
		path += kv
	}
	return path
}

// WithQueryParams appends key/value pairs (keys verbatim, values
// percent-encoded) and returns a new CompiledRoute; pairs must have even
// length.
func (c *CompiledRoute) WithQueryParams(pairs ...string) (*CompiledRoute, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New(errors.InvalidArgument, "WithQueryParams requires an even number of key/value arguments, got %d", len(pairs))
	}
	next := &CompiledRoute{
		baseRoute:     c.baseRoute,
		path:          c.path,
		majorParamKey: c.majorParamKey,
		query:         append(append([]string{}, c.query...)),
	}
	for i := 0; i < len(pairs); i += 2 {
		next.query = append(next.query, pairs[i]+"="+url.QueryEscape(pairs[i+1]))
	}
	return next, nil
}

// Equals reports whether two compiled routes resolve to the same request:
// same base route, path, query, and major-parameter key.
func (c *CompiledRoute) Equals(other *CompiledRoute) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	if !c.baseRoute.Equals(other.baseRoute) || c.path != other.path || c.majorParamKey != other.majorParamKey {
		return false
	}
	if len(c.query) != len(other.query) {
		return false
	}
	for i, kv := range c.query {
		if other.query[i] != kv {
			return false
		}
	}
	return true
}
