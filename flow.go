package magma

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Flow is one configured asset pipeline. Every run collects the configured
// paths from scratch, preprocesses each file, concatenates the results,
// postprocesses the bundle and hands the artifact to the store.
type Flow struct {
	id       FlowID
	cfg      *Config
	store    Store
	watcher  Watcher
	clock    clockz.Clock
	logger   *slog.Logger
	metrics  MetricsProvider
	syncMode bool
	pipeline *pipeline
	failures *failureRing

	state     atomic.Int32
	modified  atomic.Pointer[time.Time]
	lastError atomic.Pointer[error]

	// runMu serializes runs. files and bundle are only touched under it.
	runMu  sync.Mutex
	files  []*File
	bundle *string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	subs    map[string]subscription

	// For sync mode: channel to receive changes
	events <-chan Event
}

// NewFlow creates a flow for a normalized configuration. Most callers go
// through Engine.NewFlow, which also assigns the identity.
func NewFlow(id FlowID, cfg *Config, store Store, opts ...Option) *Flow {
	o := newOptions(opts)
	f := &Flow{
		id:       id,
		cfg:      cfg,
		store:    store,
		watcher:  o.watcher,
		clock:    o.clock,
		logger:   o.logger.With("flow", uint64(id), "route", cfg.Route.String()),
		metrics:  o.metrics,
		syncMode: o.syncMode,
		pipeline: newPipeline(cfg, o.clock, o.transformTimeout, o.concurrency),
		failures: newFailureRing(o.failureHistory),
	}
	f.state.Store(int32(StateUnarmed))
	return f
}

// ID returns the flow's identity.
func (f *Flow) ID() FlowID {
	return f.id
}

// Config returns the normalized configuration.
func (f *Flow) Config() *Config {
	return f.cfg
}

// Route returns the route the flow's artifact is served under.
func (f *Flow) Route() Route {
	return f.cfg.Route
}

// State returns the current watch state.
func (f *Flow) State() State {
	return State(f.state.Load())
}

// Modified returns when the last artifact was saved, and false if no run
// has succeeded yet.
func (f *Flow) Modified() (time.Time, bool) {
	ptr := f.modified.Load()
	if ptr == nil {
		return time.Time{}, false
	}
	return *ptr, true
}

// LastError returns the error of the most recent run, or nil if it
// succeeded.
func (f *Flow) LastError() error {
	ptr := f.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// FailureHistory returns recent failed runs, oldest first.
func (f *Flow) FailureHistory() []Failure {
	return f.failures.all()
}

// ClearFailureHistory forgets every recorded failure.
func (f *Flow) ClearFailureHistory() {
	f.failures.clear()
}

// Run performs one full run: collect, preprocess, concatenate, postprocess
// and save. Runs of the same flow never overlap; a call made while another
// run is in progress waits for it to finish.
func (f *Flow) Run(ctx context.Context) error {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	return f.run(ctx)
}

func (f *Flow) run(ctx context.Context) error {
	runID := uuid.NewString()
	start := f.clock.Now()

	capitan.Emit(ctx, RunStarted,
		KeyFlowID.Field(int(f.id)),
		KeyRoute.Field(f.cfg.Route.String()),
		KeyRunID.Field(runID),
	)

	f.files = nil
	f.bundle = nil

	collection, err := Collect(f.cfg)
	if err != nil {
		return f.fail(ctx, runID, start, err)
	}
	for _, p := range collection.Missing {
		f.warnMissing(ctx, p)
	}
	f.files = collection.Files
	count := len(f.files)

	p := f.pipeline
	if err := p.preprocess(ctx, f.files); err != nil {
		f.files = nil
		return f.fail(ctx, runID, start, err)
	}

	bundle := concatenate(f.files)
	f.files = nil
	f.bundle = &bundle

	bundle, err = p.postprocess(ctx, bundle)
	if err != nil {
		f.bundle = nil
		return f.fail(ctx, runID, start, err)
	}
	f.bundle = &bundle

	err = f.save(ctx, bundle)
	f.bundle = nil
	if err != nil {
		return f.fail(ctx, runID, start, err)
	}

	duration := f.clock.Since(start)
	f.lastError.Store(nil)
	capitan.Emit(ctx, RunSucceeded,
		KeyFlowID.Field(int(f.id)),
		KeyRunID.Field(runID),
		KeyFiles.Field(count),
		KeyDuration.Field(duration),
	)
	f.metrics.OnRunSuccess(f.id, count, duration)
	return nil
}

// save packages the bundle in the configured encoding and hands it to the
// store.
func (f *Flow) save(ctx context.Context, bundle string) error {
	data, err := encode(bundle, f.cfg.Encoding)
	if err != nil {
		return &StoreError{ID: f.id, Err: err}
	}

	modified := f.clock.Now()
	artifact := Artifact{
		ID:       f.id,
		Route:    f.cfg.Route.String(),
		MIMEType: f.cfg.MIMEType,
		Encoding: f.cfg.Encoding,
		Data:     data,
		Modified: modified,
	}
	if err := f.store.Save(ctx, artifact); err != nil {
		return &StoreError{ID: f.id, Err: err}
	}

	f.modified.Store(&modified)
	capitan.Emit(ctx, ArtifactSaved,
		KeyFlowID.Field(int(f.id)),
		KeyRoute.Field(artifact.Route),
		KeyBytes.Field(len(data)),
	)
	return nil
}

// fail records a failed run.
func (f *Flow) fail(ctx context.Context, runID string, start time.Time, err error) error {
	stage := stageOf(err)
	duration := f.clock.Since(start)

	e := err
	f.lastError.Store(&e)
	f.failures.push(Failure{At: f.clock.Now(), Stage: stage, Err: err})

	f.logger.Error("run failed", "stage", stage, "run_id", runID, "error", err)
	capitan.Emit(ctx, RunFailed,
		KeyFlowID.Field(int(f.id)),
		KeyRunID.Field(runID),
		KeyStage.Field(stage),
		KeyError.Field(err.Error()),
	)
	f.metrics.OnRunFailure(f.id, stage, duration)
	return err
}

func (f *Flow) warnMissing(ctx context.Context, path string) {
	f.logger.Warn(MissingPathWarning{Path: path}.Error(), "path", path)
	capitan.Emit(ctx, PathMissing,
		KeyFlowID.Field(int(f.id)),
		KeyPath.Field(path),
	)
}

// transitionState moves from one state to another and reports whether the
// flow was in the expected state.
func (f *Flow) transitionState(ctx context.Context, from, to State) bool {
	if from == to || !f.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	f.stateChanged(ctx, from, to)
	return true
}

func (f *Flow) stateChanged(ctx context.Context, from, to State) {
	capitan.Emit(ctx, StateChanged,
		KeyFlowID.Field(int(f.id)),
		KeyOldState.Field(from.String()),
		KeyNewState.Field(to.String()),
	)
	f.metrics.OnStateChange(f.id, from, to)
}
