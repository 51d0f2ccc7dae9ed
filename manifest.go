package magma

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// validate is the shared validator instance.
var validate = validator.New()

// Manifest is the declarative form of a set of flows:
//
//	defaults:
//	  minify: true
//	  root: ./assets
//	flows:
//	  - route: /app.css
//	    type: css
//	    paths: styles
//	    extensions: [css]
//	  - route_pattern: ^/templates/.*\.js$
//	    type: jst
//	    paths: [templates]
//	    postprocessors:
//	      - script: "function (bundle) { return '/* templates */\n' + bundle; }"
type Manifest struct {
	Defaults Defaults    `mapstructure:"defaults"`
	Flows    []FlowEntry `mapstructure:"flows" validate:"min=1,dive"`
}

// FlowEntry is one flow in a manifest. Scalars are weakly typed: a single
// path may be given as a string, and booleans as "true"/"false".
//
// Transform entries are either the name of a registered transform or a map
// with a "script" key holding a JavaScript function.
type FlowEntry struct {
	Route             string   `mapstructure:"route" validate:"required_without=RoutePattern"`
	RoutePattern      string   `mapstructure:"route_pattern"`
	Type              string   `mapstructure:"type" validate:"required"`
	Paths             []string `mapstructure:"paths" validate:"required"`
	Base              string   `mapstructure:"base"`
	Encoding          string   `mapstructure:"encoding"`
	Extensions        []string `mapstructure:"extensions"`
	Preprocessors     []any    `mapstructure:"preprocessors"`
	Postprocessors    []any    `mapstructure:"postprocessors"`
	Watch             *bool    `mapstructure:"watch"`
	Minify            *bool    `mapstructure:"minify"`
	TemplateLang      string   `mapstructure:"template_lang"`
	TemplateNamespace string   `mapstructure:"template_namespace"`
}

// LoadManifest reads a manifest file, choosing the codec from its
// extension. A missing or relative root is resolved against the manifest's
// directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- manifest path is user supplied
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := decodeManifest(data, CodecFor(path))
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	switch {
	case m.Defaults.Root == "":
		m.Defaults.Root = dir
	case !filepath.IsAbs(m.Defaults.Root):
		m.Defaults.Root = filepath.Join(dir, m.Defaults.Root)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeManifest parses and validates a manifest. The defaults must name
// a root.
func DecodeManifest(data []byte, codec Codec) (*Manifest, error) {
	m, err := decodeManifest(data, codec)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeManifest(data []byte, codec Codec) (*Manifest, error) {
	var raw map[string]any
	if err := codec.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	var m Manifest
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &m,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if m.Defaults.Encoding == "" {
		m.Defaults.Encoding = DefaultEncoding
	}
	return &m, nil
}

// Validate checks the manifest's structure. Flow semantics are checked
// later by Normalize.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m.Defaults); err != nil {
		return fmt.Errorf("manifest defaults: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// Specs converts every entry to a Spec. Script transforms are compiled
// here.
func (m *Manifest) Specs() ([]Spec, error) {
	specs := make([]Spec, 0, len(m.Flows))
	for i, entry := range m.Flows {
		spec, err := entry.Spec()
		if err != nil {
			return nil, fmt.Errorf("flow %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Build creates an engine from the manifest's defaults and a flow for every
// entry. Every invalid entry is reported; valid ones are still built.
func (m *Manifest) Build(store Store, opts ...Option) (*Engine, error) {
	engine := NewEngine(m.Defaults, store, opts...)

	var errs []error
	for i, entry := range m.Flows {
		spec, err := entry.Spec()
		if err == nil {
			_, err = engine.NewFlow(spec)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("flow %d: %w", i, err))
		}
	}
	return engine, errors.Join(errs...)
}

// Spec converts the entry to a Spec.
func (e FlowEntry) Spec() (Spec, error) {
	route := RouteString(e.Route)
	if e.RoutePattern != "" {
		re, err := regexp.Compile(e.RoutePattern)
		if err != nil {
			return Spec{}, &ConfigError{Field: "route", Reason: err.Error()}
		}
		route = RoutePattern(re)
	}

	spec := Spec{
		Route:             route,
		Type:              e.Type,
		Paths:             e.Paths,
		Base:              e.Base,
		Encoding:          e.Encoding,
		Extensions:        e.Extensions,
		Watch:             e.Watch,
		Minify:            e.Minify,
		TemplateLang:      e.TemplateLang,
		TemplateNamespace: e.TemplateNamespace,
	}

	for i, raw := range e.Preprocessors {
		name, script, err := transformEntry(raw)
		if err != nil {
			return Spec{}, &ConfigError{Field: "preprocessors", Reason: err.Error()}
		}
		if script == "" {
			spec.Preprocessors = append(spec.Preprocessors, BuiltInPre(name))
			continue
		}
		engine, err := NewScriptEngine(fmt.Sprintf("preprocessor[%d]", i), script)
		if err != nil {
			return Spec{}, &ConfigError{Field: "preprocessors", Reason: err.Error()}
		}
		spec.Preprocessors = append(spec.Preprocessors, CustomPre(engine))
	}

	for i, raw := range e.Postprocessors {
		name, script, err := transformEntry(raw)
		if err != nil {
			return Spec{}, &ConfigError{Field: "postprocessors", Reason: err.Error()}
		}
		if script == "" {
			spec.Postprocessors = append(spec.Postprocessors, BuiltInPost(name))
			continue
		}
		engine, err := NewScriptEngine(fmt.Sprintf("postprocessor[%d]", i), script)
		if err != nil {
			return Spec{}, &ConfigError{Field: "postprocessors", Reason: err.Error()}
		}
		spec.Postprocessors = append(spec.Postprocessors, CustomPost(engine))
	}

	return spec, nil
}

// transformEntry reads a transform entry: a name, or {script: source}.
func transformEntry(raw any) (name, script string, err error) {
	switch v := raw.(type) {
	case string:
		return v, "", nil
	case map[string]any:
		var entry struct {
			Script string `mapstructure:"script"`
		}
		if err := mapstructure.Decode(v, &entry); err != nil {
			return "", "", err
		}
		if entry.Script == "" {
			return "", "", errors.New("transform entries must be a name or have a script")
		}
		return "", entry.Script, nil
	default:
		return "", "", fmt.Errorf("unsupported transform entry %v", raw)
	}
}
