package magma

import "github.com/zoobzio/capitan"

// Flow lifecycle signals.
var (
	// FlowCreated is emitted when a flow passes normalization and receives
	// its identity.
	FlowCreated = capitan.NewSignal(
		"magma.flow.created",
		"Flow created",
	)

	// WatchArmed is emitted when a flow subscribes to its source paths.
	WatchArmed = capitan.NewSignal(
		"magma.watch.armed",
		"Watch subscription armed",
	)

	// WatchStopped is emitted when a flow's subscription ends.
	WatchStopped = capitan.NewSignal(
		"magma.watch.stopped",
		"Watch subscription stopped",
	)

	// StateChanged is emitted when a flow transitions between watch states.
	StateChanged = capitan.NewSignal(
		"magma.flow.state.changed",
		"Flow state transition",
	)
)

// Change handling signals.
var (
	// ChangeReceived is emitted for every notification from the watcher.
	ChangeReceived = capitan.NewSignal(
		"magma.change.received",
		"Change notification received",
	)

	// ChangeSuppressed is emitted when the first notification for a
	// subscribed path is swallowed.
	ChangeSuppressed = capitan.NewSignal(
		"magma.change.suppressed",
		"Initial change notification swallowed",
	)

	// PathMissing is emitted when a configured path does not exist.
	PathMissing = capitan.NewSignal(
		"magma.path.missing",
		"Configured path does not exist",
	)
)

// Run signals.
var (
	// RunStarted is emitted when a pipeline run begins.
	RunStarted = capitan.NewSignal(
		"magma.run.started",
		"Pipeline run started",
	)

	// RunFailed is emitted when any stage of a run fails.
	RunFailed = capitan.NewSignal(
		"magma.run.failed",
		"Pipeline run failed",
	)

	// RunSucceeded is emitted when a run completes and its artifact is saved.
	RunSucceeded = capitan.NewSignal(
		"magma.run.succeeded",
		"Pipeline run succeeded",
	)

	// ArtifactSaved is emitted when the store accepts an artifact.
	ArtifactSaved = capitan.NewSignal(
		"magma.artifact.saved",
		"Artifact saved",
	)
)
