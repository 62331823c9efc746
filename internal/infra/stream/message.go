package stream

import "github.com/ironsite/pipewatch/internal/domain/pipeline"

// Message types pushed by the backend over the progress socket.
const (
	msgTypeStepStatus       = "step_status"
	msgTypePipelineComplete = "pipeline_complete"
)

// message mirrors one frame on the progress socket: either a per-step status
// transition or the run-level completion signal.
type message struct {
	Type     string         `json:"type"`
	Step     string         `json:"step,omitempty"`
	Status   string         `json:"status,omitempty"`
	Progress *float64       `json:"progress,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    *string        `json:"error,omitempty"`
}

// stageUpdate translates the frame into a domain status table update.
func (m message) stageUpdate() pipeline.StageUpdate {
	update := pipeline.StageUpdate{
		State:    pipeline.ParseStageState(m.Status),
		Progress: m.Progress,
		Metadata: m.Metadata,
	}
	if m.Error != nil {
		update.ErrorDetail = *m.Error
	}
	return update
}
