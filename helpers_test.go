package magma

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFile creates dir/rel with contents, creating parent directories.
func writeFile(t *testing.T, dir, rel, contents string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

// stubSass stands in for the Dart Sass compiler: it wraps sass sources so
// tests can see it ran, and passes everything else through.
var stubSass = PreprocessorFunc(func(_ context.Context, f *File, _ *Config) (string, error) {
	if f.ContentType != ContentSass {
		return f.Contents, nil
	}
	return "/*sass*/" + f.Contents, nil
})

// stubMinify removes newlines and carriage returns.
var stubMinify = PostprocessorFunc(func(_ context.Context, bundle string, _ *Config) (string, error) {
	return strings.NewReplacer("\r", "", "\n", "").Replace(bundle), nil
})

func appendPre(s string) PreprocessorFunc {
	return func(_ context.Context, f *File, _ *Config) (string, error) {
		return f.Contents + s, nil
	}
}

func appendPost(s string) PostprocessorFunc {
	return func(_ context.Context, bundle string, _ *Config) (string, error) {
		return bundle + s, nil
	}
}

// testRegistry holds deterministic transforms that need no external tools.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(r.RegisterPreprocessor("sass", stubSass))
	must(r.RegisterPreprocessor("upper", PreprocessorFunc(func(_ context.Context, f *File, _ *Config) (string, error) {
		return strings.ToUpper(f.Contents), nil
	})))
	must(r.RegisterPreprocessor("underscore", TemplatePreprocessor{Compiler: "_.template"}))
	must(r.RegisterPreprocessor("raw", TemplatePreprocessor{}))
	must(r.RegisterPostprocessor("minify", stubMinify))
	must(r.RegisterPostprocessor("banner", PostprocessorFunc(func(_ context.Context, bundle string, _ *Config) (string, error) {
		return "/*banner*/" + bundle, nil
	})))
	return r
}

func testDefaults(root string) Defaults {
	return Defaults{Encoding: DefaultEncoding, Root: root}
}

func boolPtr(v bool) *bool {
	return &v
}

// normalize is Normalize against the test registry, failing the test on
// error.
func normalize(t *testing.T, spec Spec, root string) *Config {
	t.Helper()
	cfg, err := Normalize(spec, testDefaults(root), testRegistry(t))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return cfg
}
