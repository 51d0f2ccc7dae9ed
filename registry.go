package magma

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Registry holds the named built-in transforms that flow specs may
// reference. It is populated at startup and read during normalization.
type Registry struct {
	mu   sync.RWMutex
	pre  map[string]Preprocessor
	post map[string]Postprocessor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pre:  make(map[string]Preprocessor),
		post: make(map[string]Postprocessor),
	}
}

// DefaultRegistry creates a registry holding every built-in transform:
// sass/scss, less, stylus and coffeescript compilers, the underscore,
// handlebars and raw template wrappers, and the minify postprocessor.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	sass := NewSassPreprocessor("")
	_ = r.RegisterPreprocessor("sass", sass)
	_ = r.RegisterPreprocessor("scss", sass)
	_ = r.RegisterPreprocessor("less", NewExecPreprocessor("lessc", "-"))
	_ = r.RegisterPreprocessor("stylus", NewExecPreprocessor("stylus", "--print"))
	_ = r.RegisterPreprocessor("coffeescript", NewExecPreprocessor("coffee", "--compile", "--stdio", "--print"))

	_ = r.RegisterPreprocessor("underscore", TemplatePreprocessor{Compiler: "_.template"})
	_ = r.RegisterPreprocessor("handlebars", TemplatePreprocessor{Compiler: "Handlebars.compile"})
	_ = r.RegisterPreprocessor("raw", TemplatePreprocessor{})

	_ = r.RegisterPostprocessor("minify", NewMinifier())

	return r
}

// RegisterPreprocessor adds a named preprocessor. Names must be unique.
func (r *Registry) RegisterPreprocessor(name string, p Preprocessor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pre[name]; ok {
		return fmt.Errorf("preprocessor already registered: %s", name)
	}
	r.pre[name] = p
	return nil
}

// RegisterPostprocessor adds a named postprocessor. Names must be unique.
func (r *Registry) RegisterPostprocessor(name string, p Postprocessor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.post[name]; ok {
		return fmt.Errorf("postprocessor already registered: %s", name)
	}
	r.post[name] = p
	return nil
}

// Preprocessor returns the preprocessor registered under name.
func (r *Registry) Preprocessor(name string) (Preprocessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pre[name]
	return p, ok
}

// Postprocessor returns the postprocessor registered under name.
func (r *Registry) Postprocessor(name string) (Postprocessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.post[name]
	return p, ok
}

// Preprocessors returns the registered preprocessor names, sorted.
func (r *Registry) Preprocessors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pre))
	for name := range r.pre {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Postprocessors returns the registered postprocessor names, sorted.
func (r *Registry) Postprocessors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.post))
	for name := range r.post {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases transforms that hold resources, such as the Dart Sass
// process. A transform registered under several names is closed once.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[io.Closer]bool)
	var errs []error
	closeOnce := func(v any) {
		c, ok := v.(io.Closer)
		if !ok || seen[c] {
			return
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range r.pre {
		closeOnce(p)
	}
	for _, p := range r.post {
		closeOnce(p)
	}
	return errors.Join(errs...)
}
