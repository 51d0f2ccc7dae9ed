package magma

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/zoobzio/capitan"
)

// Engine builds flows from specs and manages them as a group. It owns the
// identity issuer, so flow identities are sequential per engine.
type Engine struct {
	defaults Defaults
	registry *Registry
	ids      *IDIssuer
	store    Store
	opts     []Option

	mu    sync.RWMutex
	flows []*Flow
}

// NewEngine creates an engine. Unset defaults fall back to DefaultEncoding
// and the current directory.
func NewEngine(defaults Defaults, store Store, opts ...Option) *Engine {
	if defaults.Encoding == "" {
		defaults.Encoding = DefaultEncoding
	}
	if defaults.Root == "" {
		defaults.Root = "."
	}
	if abs, err := filepath.Abs(defaults.Root); err == nil {
		defaults.Root = abs
	}

	o := newOptions(opts)
	reg := o.registry
	if reg == nil {
		reg = DefaultRegistry()
	}

	return &Engine{
		defaults: defaults,
		registry: reg,
		ids:      NewIDIssuer(),
		store:    store,
		opts:     opts,
	}
}

// Defaults returns the engine's process-wide defaults.
func (e *Engine) Defaults() Defaults {
	return e.defaults
}

// Registry returns the registry specs are resolved against.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// NewFlow normalizes spec and, if it is valid, creates a flow with the next
// identity. An invalid spec fails with a *ConfigError and consumes no
// identity.
func (e *Engine) NewFlow(spec Spec) (*Flow, error) {
	cfg, err := Normalize(spec, e.defaults, e.registry)
	if err != nil {
		return nil, err
	}

	flow := NewFlow(e.ids.Next(), cfg, e.store, e.opts...)

	e.mu.Lock()
	e.flows = append(e.flows, flow)
	e.mu.Unlock()

	capitan.Emit(context.Background(), FlowCreated,
		KeyFlowID.Field(int(flow.ID())),
		KeyRoute.Field(cfg.Route.String()),
	)
	return flow, nil
}

// Flows returns every flow in creation order.
func (e *Engine) Flows() []*Flow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.flows)
}

// Flow returns the flow with the given identity.
func (e *Engine) Flow(id FlowID) (*Flow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, f := range e.flows {
		if f.ID() == id {
			return f, true
		}
	}
	return nil, false
}

// Lookup returns the first flow, in creation order, whose route matches a
// request path.
func (e *Engine) Lookup(path string) (*Flow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, f := range e.flows {
		if f.Route().Match(path) {
			return f, true
		}
	}
	return nil, false
}

// RunAll runs every flow once. Flows are independent: a failing flow does
// not stop the others, and every failure is returned joined.
func (e *Engine) RunAll(ctx context.Context) error {
	var errs []error
	for _, f := range e.Flows() {
		if err := f.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flow %d (%s): %w", f.ID(), f.Route(), err))
		}
	}
	return errors.Join(errs...)
}

// StartAll starts every flow. Watching flows keep running until ctx is
// canceled or Stop is called.
func (e *Engine) StartAll(ctx context.Context) error {
	var errs []error
	for _, f := range e.Flows() {
		if err := f.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flow %d (%s): %w", f.ID(), f.Route(), err))
		}
	}
	return errors.Join(errs...)
}

// Stop stops every flow.
func (e *Engine) Stop() {
	for _, f := range e.Flows() {
		f.Stop()
	}
}

// Close stops every flow and releases the registry's transforms.
func (e *Engine) Close() error {
	e.Stop()
	return e.registry.Close()
}
