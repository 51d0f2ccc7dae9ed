package magma

import (
	"log/slog"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestNewOptions_Defaults(t *testing.T) {
	o := newOptions(nil)

	if o.logger == nil {
		t.Error("expected default logger")
	}
	if o.clock == nil {
		t.Error("expected a clock")
	}
	if _, ok := o.metrics.(NoOpMetricsProvider); !ok {
		t.Errorf("expected no-op metrics, got %T", o.metrics)
	}
	if _, ok := o.watcher.(*FSWatcher); !ok {
		t.Errorf("expected file system watcher, got %T", o.watcher)
	}
	if o.failureHistory != DefaultFailureHistory {
		t.Errorf("expected history %d, got %d", DefaultFailureHistory, o.failureHistory)
	}
	if o.syncMode || o.transformTimeout != 0 || o.registry != nil {
		t.Errorf("unexpected defaults %+v", o)
	}
}

func TestNewOptions_Overrides(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	clock := clockz.NewFakeClock()
	metrics := &recordingMetrics{}
	watcher := NewChannelWatcher(make(chan Event))
	reg := NewRegistry()

	o := newOptions([]Option{
		WithLogger(logger),
		WithClock(clock),
		WithMetrics(metrics),
		WithWatcher(watcher),
		WithRegistry(reg),
		WithSyncMode(),
		WithTransformTimeout(time.Second),
		WithFailureHistory(3),
		WithConcurrency(2),
	})

	if o.logger != logger {
		t.Error("expected custom logger")
	}
	if o.clock != clock {
		t.Error("expected fake clock")
	}
	if o.metrics != metrics {
		t.Error("expected custom metrics")
	}
	if o.watcher != watcher {
		t.Error("expected custom watcher")
	}
	if o.registry != reg {
		t.Error("expected custom registry")
	}
	if !o.syncMode {
		t.Error("expected sync mode")
	}
	if o.transformTimeout != time.Second {
		t.Errorf("expected 1s timeout, got %v", o.transformTimeout)
	}
	if o.concurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", o.concurrency)
	}
	if o.failureHistory != 3 {
		t.Errorf("expected history 3, got %d", o.failureHistory)
	}
}

func TestWithLogger_IgnoresNil(t *testing.T) {
	o := newOptions([]Option{WithLogger(nil)})
	if o.logger == nil {
		t.Error("expected default logger to survive a nil override")
	}
}
