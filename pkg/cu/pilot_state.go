package cu

// PilotState is the lifecycle state of the pilot itself, reported to the
// coordination store by the updater the same way CU states are (spec.md
// §3, "Pilot state machine").
type PilotState string

const (
	PilotLaunching PilotState = "LAUNCHING"
	PilotActive    PilotState = "ACTIVE"
	PilotDone      PilotState = "DONE"
	PilotFailed    PilotState = "FAILED"
	PilotCanceled  PilotState = "CANCELED"
)

// Terminal reports whether the pilot has exited and will report no further
// state changes.
func (s PilotState) Terminal() bool {
	switch s {
	case PilotDone, PilotFailed, PilotCanceled:
		return true
	default:
		return false
	}
}

var pilotTransitions = map[PilotState][]PilotState{
	PilotLaunching: {PilotActive, PilotFailed, PilotCanceled},
	PilotActive:    {PilotDone, PilotFailed, PilotCanceled},
}

// CanTransitionTo mirrors State.CanTransitionTo for the pilot's own,
// much shorter state machine.
func (s PilotState) CanTransitionTo(next PilotState) bool {
	if s.Terminal() {
		return false
	}
	for _, allowed := range pilotTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
