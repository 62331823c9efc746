package pipeline

import "time"

// StageStatus is a point-in-time view of one pipeline stage: its state,
// fractional progress, stage-specific result metadata, and failure detail.
type StageStatus struct {
	stage       Stage
	state       StageState
	progress    float64
	metadata    map[string]any
	errorDetail string
	updatedAt   time.Time
}

// NewStageStatus creates the initial Pending record for a stage.
func NewStageStatus(stage Stage) StageStatus {
	return StageStatus{stage: stage, state: StageStatePending}
}

// ReconstructStageStatus creates a StageStatus from stored fields, bypassing
// transition validation. Intended for tests and snapshot translation.
func ReconstructStageStatus(
	stage Stage,
	state StageState,
	progress float64,
	metadata map[string]any,
	errorDetail string,
	updatedAt time.Time,
) StageStatus {
	return StageStatus{
		stage:       stage,
		state:       state,
		progress:    progress,
		metadata:    metadata,
		errorDetail: errorDetail,
		updatedAt:   updatedAt,
	}
}

// Stage returns the stage this record belongs to.
func (s StageStatus) Stage() Stage { return s.stage }

// State returns the current execution state.
func (s StageStatus) State() StageState { return s.state }

// Progress returns the fractional progress in [0,1]. It is meaningful only
// while the stage is Started or InProgress and is forced to 1 on completion.
func (s StageStatus) Progress() float64 { return s.progress }

// Metadata returns the opaque stage-specific result mapping. The domain never
// interprets it; rendering collaborators do.
func (s StageStatus) Metadata() map[string]any { return s.metadata }

// ErrorDetail returns the failure description, present only when Failed.
func (s StageStatus) ErrorDetail() string { return s.errorDetail }

// UpdatedAt returns the time of the last accepted mutation.
func (s StageStatus) UpdatedAt() time.Time { return s.updatedAt }

// IsTerminal reports whether the stage has reached a terminal state.
func (s StageStatus) IsTerminal() bool { return s.state.IsTerminal() }

// StageUpdate is a partial mutation merged into an existing StageStatus.
// Zero-valued fields are left untouched.
type StageUpdate struct {
	// State is the target execution state. Empty means no state change.
	State StageState

	// Progress, when non-nil, replaces the stored fractional progress.
	Progress *float64

	// Metadata, when non-nil, replaces the stored metadata mapping.
	Metadata map[string]any

	// ErrorDetail is applied when transitioning to Failed.
	ErrorDetail string
}

// Float is a convenience for building progress pointers in updates.
func Float(v float64) *float64 { return &v }
