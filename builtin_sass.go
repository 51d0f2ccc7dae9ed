package magma

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bep/godartsass/v2"
)

// DefaultSassBinary is the Dart Sass executable used when none is given.
const DefaultSassBinary = "sass"

// ErrSassClosed is returned by compiles after the preprocessor was closed
// without ever starting.
var ErrSassClosed = errors.New("sass: preprocessor closed")

// SassPreprocessor compiles sass and scss sources to CSS with an embedded
// Dart Sass process. The process is started on first use and shared by all
// flows. Files of any other content type pass through unchanged.
type SassPreprocessor struct {
	binary string

	mu         sync.Mutex
	started    bool
	transpiler *godartsass.Transpiler
	startErr   error
}

// NewSassPreprocessor creates a sass compiler using the given Dart Sass
// binary. An empty binary uses DefaultSassBinary.
func NewSassPreprocessor(binary string) *SassPreprocessor {
	if binary == "" {
		binary = DefaultSassBinary
	}
	return &SassPreprocessor{binary: binary}
}

// Preprocess compiles file.Contents when the file is a sass source.
func (s *SassPreprocessor) Preprocess(_ context.Context, file *File, _ *Config) (string, error) {
	if file.ContentType != ContentSass {
		return file.Contents, nil
	}

	t, err := s.start()
	if err != nil {
		return "", err
	}

	syntax := godartsass.SourceSyntaxSCSS
	if extension(file.Path) == "sass" {
		syntax = godartsass.SourceSyntaxSASS
	}

	res, err := t.Execute(godartsass.Args{
		Source:       file.Contents,
		URL:          "file://" + filepath.ToSlash(file.Path),
		SourceSyntax: syntax,
		IncludePaths: []string{filepath.Dir(file.Path)},
	})
	if err != nil {
		return "", fmt.Errorf("sass: %w", err)
	}
	return res.CSS, nil
}

// Close stops the Dart Sass process if it was started. A compile that
// starts after Close fails instead of restarting the process.
func (s *SassPreprocessor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		s.startErr = ErrSassClosed
		return nil
	}
	if s.transpiler == nil {
		return nil
	}
	return s.transpiler.Close()
}

func (s *SassPreprocessor) start() (*godartsass.Transpiler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		s.transpiler, s.startErr = godartsass.Start(godartsass.Options{
			DartSassEmbeddedFilename: s.binary,
		})
		if s.startErr != nil {
			s.startErr = fmt.Errorf("sass: start %s: %w", s.binary, s.startErr)
		}
	}
	return s.transpiler, s.startErr
}
