package magma

// State represents the watch state of a Flow.
type State int32

const (
	// StateUnarmed indicates no watch subscription has been made. Flows
	// without watching enabled stay here.
	StateUnarmed State = iota

	// StateArmed indicates the flow is subscribed and waiting for changes.
	StateArmed

	// StateReflowing indicates a change triggered a run that is in progress.
	StateReflowing

	// StateStopped indicates the subscription has ended.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnarmed:
		return "unarmed"
	case StateArmed:
		return "armed"
	case StateReflowing:
		return "reflowing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
