package magma

import "regexp"

// Route is the identifier a flow's artifact is served under: either a
// literal path or a pattern.
type Route struct {
	literal string
	pattern *regexp.Regexp
}

// RouteString creates a literal route.
func RouteString(s string) Route {
	return Route{literal: s}
}

// RoutePattern creates a pattern route.
func RoutePattern(re *regexp.Regexp) Route {
	return Route{pattern: re}
}

// IsZero reports whether the route is unset.
func (r Route) IsZero() bool {
	return r.literal == "" && r.pattern == nil
}

// Pattern returns the route's pattern, or nil for literal routes.
func (r Route) Pattern() *regexp.Regexp {
	return r.pattern
}

// Match reports whether a request path is served by this route.
func (r Route) Match(path string) bool {
	if r.pattern != nil {
		return r.pattern.MatchString(path)
	}
	return r.literal != "" && r.literal == path
}

// String returns the literal route or the pattern source.
func (r Route) String() string {
	if r.pattern != nil {
		return r.pattern.String()
	}
	return r.literal
}
