package magma

import (
	"log/slog"
	"time"

	"github.com/zoobzio/clockz"
)

// DefaultFailureHistory is how many failed runs a flow remembers.
const DefaultFailureHistory = 10

// options holds configuration shared by an Engine and the flows it builds.
type options struct {
	logger           *slog.Logger
	clock            clockz.Clock
	metrics          MetricsProvider
	watcher          Watcher
	registry         *Registry
	syncMode         bool
	transformTimeout time.Duration
	concurrency      int
	failureHistory   int
}

// Option configures an Engine or a Flow.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		logger:         slog.Default(),
		clock:          clockz.RealClock,
		metrics:        NoOpMetricsProvider{},
		failureHistory: DefaultFailureHistory,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.watcher == nil {
		o.watcher = NewFSWatcher()
	}
	return o
}

// WithLogger sets the logger used for warnings and run failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic timestamps and timeouts.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithMetrics sets a metrics provider for observability integration.
func WithMetrics(provider MetricsProvider) Option {
	return func(o *options) {
		o.metrics = provider
	}
}

// WithWatcher replaces the file system watcher used by watching flows.
func WithWatcher(w Watcher) Option {
	return func(o *options) {
		o.watcher = w
	}
}

// WithRegistry sets the transform registry an Engine resolves specs
// against. Defaults to DefaultRegistry().
func WithRegistry(reg *Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithSyncMode enables synchronous processing for testing.
// In sync mode, Start arms the watch without spawning a goroutine and
// Process must be called to handle each change notification.
func WithSyncMode() Option {
	return func(o *options) {
		o.syncMode = true
	}
}

// WithTransformTimeout bounds every individual transform invocation.
// A transform that exceeds it sees its context canceled and fails the run.
func WithTransformTimeout(d time.Duration) Option {
	return func(o *options) {
		o.transformTimeout = d
	}
}

// WithFailureHistory sets how many failed runs are kept for
// FailureHistory. Zero disables the history.
func WithFailureHistory(size int) Option {
	return func(o *options) {
		o.failureHistory = size
	}
}

// WithConcurrency caps how many files of one flow are preprocessed at the
// same time. Defaults to runtime.GOMAXPROCS(0).
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}
