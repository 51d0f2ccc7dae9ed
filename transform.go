package magma

import (
	"context"
	"fmt"
)

// File is one collected source file. Contents are replaced in place as each
// preprocessor runs.
type File struct {
	// Name is the base name of the file.
	Name string

	// Path is the resolved file system path.
	Path string

	// Contents holds the decoded text, without a leading byte-order mark.
	Contents string

	// ContentType is detected from the file extension.
	ContentType string
}

// Preprocessor transforms a single source file.
type Preprocessor interface {
	Preprocess(ctx context.Context, file *File, cfg *Config) (string, error)
}

// PreprocessorFunc adapts a function to the Preprocessor interface.
type PreprocessorFunc func(ctx context.Context, file *File, cfg *Config) (string, error)

// Preprocess calls f.
func (f PreprocessorFunc) Preprocess(ctx context.Context, file *File, cfg *Config) (string, error) {
	return f(ctx, file, cfg)
}

// Postprocessor transforms a whole concatenated bundle.
type Postprocessor interface {
	Postprocess(ctx context.Context, bundle string, cfg *Config) (string, error)
}

// PostprocessorFunc adapts a function to the Postprocessor interface.
type PostprocessorFunc func(ctx context.Context, bundle string, cfg *Config) (string, error)

// Postprocess calls f.
func (f PostprocessorFunc) Postprocess(ctx context.Context, bundle string, cfg *Config) (string, error) {
	return f(ctx, bundle, cfg)
}

// PreprocessorRef names a preprocessor in a Spec: either a built-in resolved
// through the Registry, or a custom value.
type PreprocessorRef struct {
	name   string
	custom Preprocessor
}

// BuiltInPre references a registered preprocessor by name.
func BuiltInPre(name string) PreprocessorRef {
	return PreprocessorRef{name: name}
}

// CustomPre references a preprocessor value directly.
func CustomPre(p Preprocessor) PreprocessorRef {
	return PreprocessorRef{custom: p}
}

// String returns the built-in name or a description of the custom value.
func (r PreprocessorRef) String() string {
	if r.custom != nil {
		return fmt.Sprintf("custom(%T)", r.custom)
	}
	return r.name
}

// PostprocessorRef names a postprocessor in a Spec.
type PostprocessorRef struct {
	name   string
	custom Postprocessor
}

// BuiltInPost references a registered postprocessor by name.
func BuiltInPost(name string) PostprocessorRef {
	return PostprocessorRef{name: name}
}

// CustomPost references a postprocessor value directly.
func CustomPost(p Postprocessor) PostprocessorRef {
	return PostprocessorRef{custom: p}
}

// String returns the built-in name or a description of the custom value.
func (r PostprocessorRef) String() string {
	if r.custom != nil {
		return fmt.Sprintf("custom(%T)", r.custom)
	}
	return r.name
}

// namedPre is a resolved preprocessor with the name it is reported under.
type namedPre struct {
	name string
	Preprocessor
}

// namedPost is a resolved postprocessor with the name it is reported under.
type namedPost struct {
	name string
	Postprocessor
}
