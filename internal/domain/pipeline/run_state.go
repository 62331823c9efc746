package pipeline

import "fmt"

// RunState represents the overall state of a pipeline run. It is driven by
// explicit terminal signals from the backend, never derived from the
// per-stage records alone.
type RunState string

const (
	// RunStateIdle indicates no run session exists yet.
	RunStateIdle RunState = "IDLE"

	// RunStateRunning indicates a run session is active.
	RunStateRunning RunState = "RUNNING"

	// RunStateCompleted indicates the backend signalled overall completion.
	RunStateCompleted RunState = "COMPLETED"

	// RunStateFailed indicates the backend signalled overall failure.
	RunStateFailed RunState = "FAILED"
)

// String returns the string representation of the RunState.
func (s RunState) String() string { return string(s) }

// IsTerminal reports whether the run has finished, successfully or not.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// ParseRunState converts a backend wire value to a RunState. The backend
// reports overall status as "running", "completed", or "error".
func ParseRunState(s string) RunState {
	switch s {
	case "running", "RUNNING":
		return RunStateRunning
	case "completed", "COMPLETED":
		return RunStateCompleted
	case "error", "failed", "FAILED":
		return RunStateFailed
	default:
		return ""
	}
}

// ValidateTransition checks if a state transition is valid and returns an error if not.
func (s RunState) ValidateTransition(target RunState) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid run state transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current state can transition to the target
// state. It enforces the run lifecycle rules to prevent invalid state changes.
func (s RunState) isValidTransition(target RunState) bool {
	switch s {
	case RunStateIdle:
		// From Idle, a run can only begin.
		return target == RunStateRunning
	case RunStateRunning:
		// From Running, can move to Completed or Failed.
		return target == RunStateCompleted || target == RunStateFailed
	case RunStateCompleted, RunStateFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
