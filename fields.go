package magma

import "github.com/zoobzio/capitan"

// Field keys for flow events.
var (
	// KeyFlowID is the identity of the flow.
	KeyFlowID = capitan.NewIntKey("flow_id")

	// KeyRoute is the flow's route.
	KeyRoute = capitan.NewStringKey("route")

	// KeyRunID correlates the signals of one pipeline run.
	KeyRunID = capitan.NewStringKey("run_id")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyState is the current state of the flow.
	KeyState = capitan.NewStringKey("state")

	// KeyPath is the file system path an event refers to.
	KeyPath = capitan.NewStringKey("path")

	// KeyOp is the kind of change notification.
	KeyOp = capitan.NewStringKey("op")

	// KeyStage is the pipeline stage that failed.
	KeyStage = capitan.NewStringKey("stage")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyFiles is the number of files collected by a run.
	KeyFiles = capitan.NewIntKey("files")

	// KeyBytes is the size of a saved artifact.
	KeyBytes = capitan.NewIntKey("bytes")

	// KeyDuration is how long a run took.
	KeyDuration = capitan.NewDurationKey("duration")
)
