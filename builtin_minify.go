package magma

import (
	"context"
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

// Minifier minifies a bundle according to the flow's MIME type.
type Minifier struct {
	m *minify.M
}

// NewMinifier creates a minifier for stylesheets and scripts.
func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc(ContentCSS, css.Minify)
	m.AddFunc(ContentJavaScript, js.Minify)
	return &Minifier{m: m}
}

// Postprocess minifies bundle.
func (mn *Minifier) Postprocess(_ context.Context, bundle string, cfg *Config) (string, error) {
	out, err := mn.m.String(cfg.MIMEType, bundle)
	if err != nil {
		return "", fmt.Errorf("minify %s: %w", cfg.MIMEType, err)
	}
	return out, nil
}
