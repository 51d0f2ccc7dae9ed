package magma

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
	"golang.org/x/sync/errgroup"
)

// LineTerminator follows every file's contents in a concatenated bundle.
const LineTerminator = "\r\n"

var (
	preprocessID  = pipz.NewIdentity("magma:preprocess", "Per-file preprocessor chain")
	postprocessID = pipz.NewIdentity("magma:postprocess", "Bundle postprocessor chain")
)

// pipeline runs the transform stages of a flow. Each stage is a pipz
// sequence with one processor per transform, optionally bounded by a
// per-transform timeout.
type pipeline struct {
	cfg         *Config
	clock       clockz.Clock
	timeout     time.Duration
	concurrency int

	mu     sync.Mutex
	chains map[string]pipz.Chainable[*File]
	post   pipz.Chainable[string]
}

// newPipeline builds the pipeline for cfg. A concurrency below one uses
// runtime.GOMAXPROCS.
func newPipeline(cfg *Config, clock clockz.Clock, timeout time.Duration, concurrency int) *pipeline {
	if concurrency < 1 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	p := &pipeline{
		cfg:         cfg,
		clock:       clock,
		timeout:     timeout,
		concurrency: concurrency,
		chains:      make(map[string]pipz.Chainable[*File]),
	}

	steps := make([]pipz.Chainable[string], 0, len(cfg.postprocessors))
	for _, t := range cfg.postprocessors {
		steps = append(steps, p.postStep(t))
	}
	p.post = pipz.NewSequence(postprocessID, steps...)
	return p
}

// stepError names the transform a processor failure came from.
type stepError struct {
	transform string
	err       error
}

func (e *stepError) Error() string { return e.transform + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func (p *pipeline) preStep(t namedPre) pipz.Chainable[*File] {
	id := pipz.NewIdentity(t.name, "preprocessor")
	var step pipz.Chainable[*File] = pipz.Apply(id, func(ctx context.Context, f *File) (*File, error) {
		out, err := t.Preprocess(ctx, f, p.cfg)
		if err != nil {
			return f, &stepError{transform: t.name, err: err}
		}
		next := *f
		next.Contents = out
		return &next, nil
	})
	if p.timeout > 0 {
		step = pipz.NewTimeout(id, step, p.timeout).WithClock(p.clock)
	}
	return step
}

func (p *pipeline) postStep(t namedPost) pipz.Chainable[string] {
	id := pipz.NewIdentity(t.name, "postprocessor")
	var step pipz.Chainable[string] = pipz.Apply(id, func(ctx context.Context, bundle string) (string, error) {
		out, err := t.Postprocess(ctx, bundle, p.cfg)
		if err != nil {
			return bundle, &stepError{transform: t.name, err: err}
		}
		return out, nil
	})
	if p.timeout > 0 {
		step = pipz.NewTimeout(id, step, p.timeout).WithClock(p.clock)
	}
	return step
}

// chainFor returns the sequence for a file's content type, building it on
// first use.
func (p *pipeline) chainFor(file *File) pipz.Chainable[*File] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if chain, ok := p.chains[file.ContentType]; ok {
		return chain
	}
	transforms := p.cfg.chainFor(file)
	steps := make([]pipz.Chainable[*File], 0, len(transforms))
	for _, t := range transforms {
		steps = append(steps, p.preStep(t))
	}
	chain := pipz.NewSequence(preprocessID, steps...)
	p.chains[file.ContentType] = chain
	return chain
}

// preprocess runs each file's chain. Files are processed concurrently, at
// most concurrency at a time; transforms within one file's chain run in
// order, each seeing the previous output. It returns once every file has
// finished or the first one failed.
func (p *pipeline) preprocess(ctx context.Context, files []*File) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, file := range files {
		chain := p.chainFor(file)
		g.Go(func() error {
			out, err := chain.Process(ctx, file)
			if err != nil {
				return chainError[*File](StagePreprocess, file.Path, err)
			}
			files[i] = out
			return nil
		})
	}
	return g.Wait()
}

// concatenate joins the files in collection order.
func concatenate(files []*File) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString(f.Contents)
		b.WriteString(LineTerminator)
	}
	return b.String()
}

// postprocess runs the bundle chain in order.
func (p *pipeline) postprocess(ctx context.Context, bundle string) (string, error) {
	out, err := p.post.Process(ctx, bundle)
	if err != nil {
		return "", chainError[string](StagePostprocess, "", err)
	}
	return out, nil
}

// chainError turns a pipz failure into a *TransformError carrying the
// transform's own error.
func chainError[T any](stage, path string, err error) *TransformError {
	te := &TransformError{Stage: stage, Path: path, Err: err}

	var pe *pipz.Error[T]
	if errors.As(err, &pe) {
		te.Err = pe.Err
		if n := len(pe.Path); n > 0 {
			te.Transform = pe.Path[n-1].Name()
		}
	}

	var se *stepError
	if errors.As(te.Err, &se) {
		te.Transform = se.transform
		te.Err = se.err
	}
	return te
}
