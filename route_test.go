package magma

import (
	"regexp"
	"testing"
)

func TestRoute_Literal(t *testing.T) {
	r := RouteString("/app.js")
	if r.IsZero() {
		t.Error("expected non-zero route")
	}
	if !r.Match("/app.js") || r.Match("/app.js.map") {
		t.Error("expected exact literal matching")
	}
	if r.Pattern() != nil {
		t.Error("expected no pattern for a literal route")
	}
	if r.String() != "/app.js" {
		t.Errorf("unexpected string %q", r.String())
	}
}

func TestRoute_Pattern(t *testing.T) {
	r := RoutePattern(regexp.MustCompile(`^/css/\w+\.css$`))
	if !r.Match("/css/site.css") || r.Match("/js/site.js") {
		t.Error("unexpected pattern matching")
	}
	if r.String() != `^/css/\w+\.css$` {
		t.Errorf("unexpected string %q", r.String())
	}
}

func TestRoute_Zero(t *testing.T) {
	var r Route
	if !r.IsZero() {
		t.Error("expected zero route")
	}
	if r.Match("") {
		t.Error("zero route must not match")
	}
}
