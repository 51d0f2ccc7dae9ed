package magma

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key flow events.
type MetricsProvider interface {
	// OnStateChange is called when a flow transitions between watch states.
	OnStateChange(id FlowID, from, to State)

	// OnRunSuccess is called when a run saves its artifact.
	// Files is the number of collected source files.
	OnRunSuccess(id FlowID, files int, duration time.Duration)

	// OnRunFailure is called when a run fails.
	// Stage is one of "collect", "preprocess", "postprocess" or "save".
	OnRunFailure(id FlowID, stage string, duration time.Duration)

	// OnChangeReceived is called for every watcher notification.
	OnChangeReceived(id FlowID)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_ FlowID, _, _ State)               {}
func (NoOpMetricsProvider) OnRunSuccess(_ FlowID, _ int, _ time.Duration)    {}
func (NoOpMetricsProvider) OnRunFailure(_ FlowID, _ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnChangeReceived(_ FlowID)                        {}
