package magma

import (
	"path/filepath"
	"slices"
)

// Defaults are the process-wide values a flow falls back to when its own
// spec leaves them unset.
type Defaults struct {
	Minify   bool   `yaml:"minify" json:"minify" mapstructure:"minify"`
	Watch    bool   `yaml:"watch" json:"watch" mapstructure:"watch"`
	Encoding string `yaml:"encoding" json:"encoding" mapstructure:"encoding" validate:"required"`
	Root     string `yaml:"root" json:"root" mapstructure:"root" validate:"required"`
}

// DefaultEncoding is used when neither the spec nor the defaults name one.
const DefaultEncoding = "utf-8"

// Spec is the raw declaration of a flow.
type Spec struct {
	// Route is the identifier the artifact is served under.
	Route Route

	// Type is "css", "js" or "jst" (or the aliases "style", "script",
	// "template").
	Type string

	// Paths are searched for source files, relative to Base.
	Paths []string

	// Base is joined to the project root before resolving paths.
	Base string

	// Encoding names the character encoding of source files.
	Encoding string

	// Extensions restricts which files directories contribute.
	// Defaults to the type's own extension.
	Extensions []string

	Preprocessors  []PreprocessorRef
	Postprocessors []PostprocessorRef

	// Watch and Minify fall back to Defaults when nil.
	Watch  *bool
	Minify *bool

	// TemplateLang names the template preprocessor for template flows.
	TemplateLang string

	// TemplateNamespace is the global object templates register under.
	TemplateNamespace string
}

// Config is a normalized, validated flow configuration. It is not modified
// after Normalize returns.
type Config struct {
	Route             Route
	Type              Type
	MIMEType          string
	Paths             []string
	Base              string
	Root              string
	Encoding          string
	Extensions        []string
	Watch             bool
	Minify            bool
	TemplateLang      string
	TemplateNamespace string

	preprocessors  []namedPre
	postprocessors []namedPost
	leading        map[string]namedPre
}

// Normalize validates spec, fills unset values from defaults and resolves
// every transform reference against reg. It fails with a *ConfigError.
func Normalize(spec Spec, defaults Defaults, reg *Registry) (*Config, error) {
	if spec.Route.IsZero() {
		return nil, &ConfigError{Field: "route", Reason: "must be a string or regex"}
	}
	if spec.Type == "" {
		return nil, &ConfigError{Field: "type", Reason: "must be a string"}
	}
	typ, err := ParseType(spec.Type)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	mimeType, ok := typ.MIMEType()
	if !ok {
		return nil, &ConfigError{Reason: "invalid type: \"" + spec.Type + "\""}
	}
	if len(spec.Paths) == 0 {
		return nil, &ConfigError{Field: "paths", Reason: "must be a string or array of strings"}
	}
	for _, p := range spec.Paths {
		if p == "" {
			return nil, &ConfigError{Field: "paths", Reason: "must not contain empty entries"}
		}
	}

	cfg := &Config{
		Route:             spec.Route,
		Type:              typ,
		MIMEType:          mimeType,
		Paths:             slices.Clone(spec.Paths),
		Base:              spec.Base,
		Root:              defaults.Root,
		Encoding:          firstNonEmpty(spec.Encoding, defaults.Encoding, DefaultEncoding),
		Watch:             boolOr(spec.Watch, defaults.Watch),
		Minify:            boolOr(spec.Minify, defaults.Minify),
		TemplateLang:      spec.TemplateLang,
		TemplateNamespace: spec.TemplateNamespace,
	}

	if _, err := lookupEncoding(cfg.Encoding); err != nil {
		return nil, &ConfigError{Field: "encoding", Reason: err.Error()}
	}

	extensions := spec.Extensions
	if len(extensions) == 0 {
		extensions = []string{typ.Extension()}
	}
	for _, ext := range append(slices.Clone(extensions), typ.subLanguages()...) {
		if !slices.Contains(cfg.Extensions, ext) {
			cfg.Extensions = append(cfg.Extensions, ext)
		}
	}

	pre := spec.Preprocessors
	if typ == TypeTemplate {
		if cfg.TemplateLang == "" {
			cfg.TemplateLang = "underscore"
		}
		if cfg.TemplateNamespace == "" {
			cfg.TemplateNamespace = DefaultTemplateNamespace
		}
		pre = append([]PreprocessorRef{BuiltInPre(cfg.TemplateLang)}, pre...)
	}
	for _, ref := range pre {
		p, err := resolvePre(ref, reg)
		if err != nil {
			return nil, err
		}
		cfg.preprocessors = append(cfg.preprocessors, p)
	}

	post := slices.Clone(spec.Postprocessors)
	if cfg.Minify {
		post = append(post, BuiltInPost("minify"))
	}
	for _, ref := range post {
		p, err := resolvePost(ref, reg)
		if err != nil {
			return nil, err
		}
		cfg.postprocessors = append(cfg.postprocessors, p)
	}

	cfg.leading = make(map[string]namedPre, len(leadingTransforms))
	for contentType, name := range leadingTransforms {
		if p, ok := reg.Preprocessor(name); ok {
			cfg.leading[contentType] = namedPre{name: name, Preprocessor: p}
		}
	}

	return cfg, nil
}

// BaseDir is the directory configured paths are resolved against.
func (c *Config) BaseDir() string {
	if c.Base == "" {
		return c.Root
	}
	if filepath.IsAbs(c.Base) {
		return c.Base
	}
	return filepath.Join(c.Root, c.Base)
}

// Resolve joins a configured path to the base directory.
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.BaseDir(), path)
}

// HasExtension reports whether ext (without a dot) is matched by the flow.
func (c *Config) HasExtension(ext string) bool {
	return slices.Contains(c.Extensions, ext)
}

// PreprocessorNames returns the resolved preprocessor chain's names.
func (c *Config) PreprocessorNames() []string {
	names := make([]string, len(c.preprocessors))
	for i, p := range c.preprocessors {
		names[i] = p.name
	}
	return names
}

// PostprocessorNames returns the resolved postprocessor chain's names.
func (c *Config) PostprocessorNames() []string {
	names := make([]string, len(c.postprocessors))
	for i, p := range c.postprocessors {
		names[i] = p.name
	}
	return names
}

// chainFor builds the preprocessor chain for one file: the leading
// transform for its content type, if any, then the configured chain.
func (c *Config) chainFor(file *File) []namedPre {
	lead, ok := c.leading[file.ContentType]
	if !ok {
		return c.preprocessors
	}
	chain := make([]namedPre, 0, len(c.preprocessors)+1)
	chain = append(chain, lead)
	return append(chain, c.preprocessors...)
}

// scriptValues exposes the configuration to script transforms.
func (c *Config) scriptValues() map[string]any {
	return map[string]any{
		"route":             c.Route.String(),
		"type":              string(c.Type),
		"mimeType":          c.MIMEType,
		"encoding":          c.Encoding,
		"minify":            c.Minify,
		"templateNamespace": c.TemplateNamespace,
	}
}

func resolvePre(ref PreprocessorRef, reg *Registry) (namedPre, error) {
	if ref.custom != nil {
		return namedPre{name: ref.String(), Preprocessor: ref.custom}, nil
	}
	if ref.name == "" {
		return namedPre{}, &ConfigError{Reason: "invalid preprocessor: preprocessors must be the name of a built-in preprocessor, or a preprocessing function"}
	}
	p, ok := reg.Preprocessor(ref.name)
	if !ok {
		return namedPre{}, &ConfigError{Reason: "invalid preprocessor \"" + ref.name + "\""}
	}
	return namedPre{name: ref.name, Preprocessor: p}, nil
}

func resolvePost(ref PostprocessorRef, reg *Registry) (namedPost, error) {
	if ref.custom != nil {
		return namedPost{name: ref.String(), Postprocessor: ref.custom}, nil
	}
	if ref.name == "" {
		return namedPost{}, &ConfigError{Reason: "invalid postprocessor: postprocessors must be the name of a built-in postprocessor, or a postprocessing function"}
	}
	p, ok := reg.Postprocessor(ref.name)
	if !ok {
		return namedPost{}, &ConfigError{Reason: "invalid postprocessor \"" + ref.name + "\""}
	}
	return namedPost{name: ref.name, Postprocessor: p}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
