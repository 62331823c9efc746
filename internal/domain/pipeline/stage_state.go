package pipeline

import "fmt"

// StageState represents the execution state of an individual pipeline stage.
type StageState string

const (
	// StageStatePending indicates a stage is part of the run but has not started.
	StageStatePending StageState = "PENDING"

	// StageStateStarted indicates the backend has begun executing the stage.
	StageStateStarted StageState = "STARTED"

	// StageStateInProgress indicates the stage is reporting fractional progress.
	StageStateInProgress StageState = "IN_PROGRESS"

	// StageStateCompleted indicates a stage finished successfully.
	StageStateCompleted StageState = "COMPLETED"

	// StageStateFailed indicates a stage encountered an unrecoverable error.
	StageStateFailed StageState = "FAILED"

	// StageStateUnspecified is used when a stage state is unknown.
	StageStateUnspecified StageState = "UNSPECIFIED"
)

// String returns the string representation of the StageState.
func (s StageState) String() string { return string(s) }

// IsTerminal reports whether the state is stage-terminal. A stage in a
// terminal state must never revert to a non-terminal state within one run.
func (s StageState) IsTerminal() bool {
	return s == StageStateCompleted || s == StageStateFailed
}

// ParseStageState converts a backend wire value to a StageState. The backend
// reports "progress" for fractional updates and "error" for failures.
func ParseStageState(s string) StageState {
	switch s {
	case "pending", "PENDING":
		return StageStatePending
	case "started", "STARTED":
		return StageStateStarted
	case "progress", "in_progress", "IN_PROGRESS":
		return StageStateInProgress
	case "completed", "COMPLETED":
		return StageStateCompleted
	case "error", "failed", "FAILED":
		return StageStateFailed
	default:
		return StageStateUnspecified
	}
}

// validateTransition checks if a state transition is valid and returns an error if not.
func (s StageState) validateTransition(target StageState) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid stage state transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current state can transition to the target
// state. Forward jumps are allowed because either channel can deliver a later
// state before the intermediate ones are observed; transitions out of a
// terminal state are never allowed.
func (s StageState) isValidTransition(target StageState) bool {
	switch s {
	case StageStatePending:
		// A snapshot fetched after a disconnect may jump a stage straight
		// from Pending to Completed or Failed.
		return target == StageStateStarted || target == StageStateInProgress ||
			target == StageStateCompleted || target == StageStateFailed
	case StageStateStarted:
		return target == StageStateInProgress || target == StageStateCompleted ||
			target == StageStateFailed
	case StageStateInProgress:
		return target == StageStateCompleted || target == StageStateFailed
	case StageStateCompleted, StageStateFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
