package backend

import (
	"github.com/ironsite/pipewatch/internal/domain/pipeline"
)

// StepStatus mirrors the backend's per-step status schema.
type StepStatus struct {
	Step     string         `json:"step"`
	Status   string         `json:"status"`
	Progress float64        `json:"progress"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    *string        `json:"error,omitempty"`
}

// remoteStatus translates the wire representation into the domain's remote
// view. The wire reports "progress" for fractional updates and "error" for
// failures; both are normalized by ParseStageState.
func (s StepStatus) remoteStatus() pipeline.RemoteStageStatus {
	status := pipeline.RemoteStageStatus{
		State:    pipeline.ParseStageState(s.Status),
		Progress: s.Progress,
		Metadata: s.Metadata,
	}
	if s.Error != nil {
		status.ErrorDetail = *s.Error
	}
	return status
}

// RunSnapshot mirrors the backend's full status response for one run: every
// known step plus the overall run status.
type RunSnapshot struct {
	RunID       string                `json:"run_id"`
	Status      string                `json:"status"`
	CurrentStep *string               `json:"current_step,omitempty"`
	Steps       map[string]StepStatus `json:"steps"`
}

// ToDomain translates the wire snapshot into the domain's remote view.
// Steps outside the configured stage sequence are dropped.
func (s *RunSnapshot) ToDomain() *pipeline.RemoteSnapshot {
	snapshot := &pipeline.RemoteSnapshot{
		RunID:  s.RunID,
		State:  pipeline.ParseRunState(s.Status),
		Stages: make(map[pipeline.Stage]pipeline.RemoteStageStatus, len(s.Steps)),
	}
	if s.CurrentStep != nil {
		snapshot.CurrentStage = *s.CurrentStep
	}
	for name, step := range s.Steps {
		stage, err := pipeline.ParseStage(name)
		if err != nil {
			continue
		}
		snapshot.Stages[stage] = step.remoteStatus()
	}
	return snapshot
}

// RunConfig mirrors the backend's pipeline launch configuration.
type RunConfig struct {
	VideoPath        string `json:"video_path"`
	Backend          string `json:"backend,omitempty"`
	KeyframeInterval int    `json:"keyframe_interval,omitempty"`
	MaxFrames        int    `json:"max_frames,omitempty"`
	GrokKey          string `json:"grok_key,omitempty"`
	SkipVLM          bool   `json:"skip_vlm"`
}

// startRunResponse is the backend's response to a launch request.
type startRunResponse struct {
	RunID string `json:"run_id"`
}

// UploadResult describes a stored video upload on the backend.
type UploadResult struct {
	VideoPath string  `json:"video_path"`
	Filename  string  `json:"filename"`
	SizeMB    float64 `json:"size_mb"`
}
