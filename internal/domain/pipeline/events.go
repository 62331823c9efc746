package pipeline

import (
	"time"

	"github.com/ironsite/pipewatch/internal/domain/events"
)

// StageStatusEvent signals that a stage's record in the status table changed.
type StageStatusEvent struct {
	occurredAt time.Time
	RunID      string
	Status     StageStatus
}

// NewStageStatusEvent creates a new stage status changed event.
func NewStageStatusEvent(runID string, status StageStatus) StageStatusEvent {
	return StageStatusEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		Status:     status,
	}
}

func (e StageStatusEvent) EventType() events.EventType { return events.EventTypeStageStatusUpdated }
func (e StageStatusEvent) OccurredAt() time.Time       { return e.occurredAt }

// RunStateEvent signals that the overall run state changed.
type RunStateEvent struct {
	occurredAt time.Time
	RunID      string
	State      RunState
}

// NewRunStateEvent creates a new run state changed event.
func NewRunStateEvent(runID string, state RunState) RunStateEvent {
	return RunStateEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		State:      state,
	}
}

func (e RunStateEvent) EventType() events.EventType { return events.EventTypeRunStateChanged }
func (e RunStateEvent) OccurredAt() time.Time       { return e.occurredAt }

// SessionResetEvent signals that a new run session replaced the previous one
// and all prior per-stage state was discarded.
type SessionResetEvent struct {
	occurredAt time.Time
	RunID      string
}

// NewSessionResetEvent creates a new session reset event.
func NewSessionResetEvent(runID string) SessionResetEvent {
	return SessionResetEvent{occurredAt: time.Now(), RunID: runID}
}

func (e SessionResetEvent) EventType() events.EventType { return events.EventTypeSessionReset }
func (e SessionResetEvent) OccurredAt() time.Time       { return e.occurredAt }
