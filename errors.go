package magma

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("invalid flow config")

	// ErrInvalidPath is matched by every *InvalidPathError.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotFound is returned by a Loader when no artifact exists for a flow.
	ErrNotFound = errors.New("artifact not found")

	// ErrAlreadyStarted is returned when Start is called twice on a flow.
	ErrAlreadyStarted = errors.New("flow already started")
)

// ConfigError reports a flow declaration that failed normalization.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("'%s' %s", e.Field, e.Reason)
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// InvalidPathError reports a configured path that resolved to something
// other than a regular file or directory.
type InvalidPathError struct {
	Path string
	Mode fs.FileMode
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("path %q is invalid! Must be a file or directory (mode %s)", e.Path, e.Mode.Type())
}

// Is reports whether target is ErrInvalidPath.
func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// MissingPathWarning describes a configured path that does not exist. It is
// logged and skipped, never returned as a failure.
type MissingPathWarning struct {
	Path string
}

func (w MissingPathWarning) Error() string {
	return fmt.Sprintf("%s does not exist", w.Path)
}

// Pipeline stages, used in TransformError and failure reporting.
const (
	StageCollect     = "collect"
	StagePreprocess  = "preprocess"
	StagePostprocess = "postprocess"
	StageSave        = "save"
)

// TransformError reports a preprocessor or postprocessor failure.
type TransformError struct {
	Stage     string
	Transform string
	Path      string // empty for postprocessors
	Err       error
}

func (e *TransformError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %q failed on %s: %v", e.Stage, e.Transform, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %q failed: %v", e.Stage, e.Transform, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed artifact save.
type StoreError struct {
	ID  FlowID
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("save flow %d: %v", e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// stageOf returns the pipeline stage an error was raised in.
func stageOf(err error) string {
	var te *TransformError
	if errors.As(err, &te) {
		return te.Stage
	}
	var se *StoreError
	if errors.As(err, &se) {
		return StageSave
	}
	return StageCollect
}
