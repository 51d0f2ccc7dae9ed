package magma

import "testing"

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"css": TypeStyle, "style": TypeStyle,
		"js": TypeScript, "script": TypeScript,
		"jst": TypeTemplate, "template": TypeTemplate,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil || got != want {
			t.Errorf("ParseType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseType("CSS"); err == nil {
		t.Error("expected type names to be case sensitive")
	}
}

func TestType_MIMEType(t *testing.T) {
	if m, ok := TypeStyle.MIMEType(); !ok || m != "text/css" {
		t.Errorf("unexpected css MIME type %q", m)
	}
	if m, ok := TypeScript.MIMEType(); !ok || m != "application/javascript" {
		t.Errorf("unexpected js MIME type %q", m)
	}
	if _, ok := Type("html").MIMEType(); ok {
		t.Error("expected unknown type to have no MIME type")
	}
}

func TestDetectContentType(t *testing.T) {
	cases := map[string]string{
		"a.css":        ContentCSS,
		"a.js":         ContentJavaScript,
		"a.scss":       ContentSass,
		"dir/a.sass":   ContentSass,
		"a.less":       ContentLess,
		"a.styl":       ContentStylus,
		"a.coffee":     ContentCoffeeScript,
		"a.jst":        ContentTemplate,
		"a.html":       "text/html",
		"no-extension": ContentUnknown,
	}
	for path, want := range cases {
		if got := DetectContentType(path); got != want {
			t.Errorf("DetectContentType(%q) = %q, want %q", path, got, want)
		}
	}
}
