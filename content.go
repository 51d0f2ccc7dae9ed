package magma

import (
	"mime"
	"path/filepath"
	"strings"
)

// Content types detected from source file extensions.
const (
	ContentCSS          = "text/css"
	ContentJavaScript   = "application/javascript"
	ContentSass         = "text/sass"
	ContentLess         = "text/less"
	ContentStylus       = "text/stylus"
	ContentCoffeeScript = "application/coffeescript"
	ContentTemplate     = "text/template"
	ContentUnknown      = "application/octet-stream"
)

var contentTypes = map[string]string{
	"css":    ContentCSS,
	"js":     ContentJavaScript,
	"sass":   ContentSass,
	"scss":   ContentSass,
	"less":   ContentLess,
	"styl":   ContentStylus,
	"coffee": ContentCoffeeScript,
	"jst":    ContentTemplate,
}

// leadingTransforms maps a detected content type to the built-in
// preprocessor that must run before any configured ones.
var leadingTransforms = map[string]string{
	ContentSass:         "sass",
	ContentLess:         "less",
	ContentStylus:       "stylus",
	ContentCoffeeScript: "coffeescript",
}

// DetectContentType returns the content type for a path based on its
// extension.
func DetectContentType(path string) string {
	ext := extension(path)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return ct
	}
	return ContentUnknown
}

// extension returns the extension of path without the leading dot.
func extension(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
