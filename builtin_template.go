package magma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTemplateNamespace is the global object templates register under.
const DefaultTemplateNamespace = "JST"

// TemplatePreprocessor wraps a template source in a script statement that
// registers it in the flow's template namespace, keyed by the file name
// without its extension. Compiler is the client-side function the source is
// passed to, such as "_.template"; an empty Compiler registers the raw
// source string.
type TemplatePreprocessor struct {
	Compiler string
}

// Preprocess emits the registration statement for file.
func (p TemplatePreprocessor) Preprocess(_ context.Context, file *File, cfg *Config) (string, error) {
	ns := cfg.TemplateNamespace
	if ns == "" {
		ns = DefaultTemplateNamespace
	}

	name, err := jsString(strings.TrimSuffix(file.Name, "."+extension(file.Name)))
	if err != nil {
		return "", err
	}
	source, err := jsString(file.Contents)
	if err != nil {
		return "", err
	}

	value := source
	if p.Compiler != "" {
		value = fmt.Sprintf("%s(%s)", p.Compiler, source)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "this.%[1]s = this.%[1]s || {};\n", ns)
	fmt.Fprintf(&b, "this.%s[%s] = %s;", ns, name, value)
	return b.String(), nil
}

// jsString quotes s as a JavaScript string literal. Markup characters are
// kept as is.
func jsString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
