// Package pipeline contains the domain model for tracking the progress of a
// spatial-analysis pipeline run: the fixed stage sequence, per-stage status
// records, the authoritative status table, and the run-level state machine.
package pipeline

import "errors"

// Stage identifies one unit of work in the fixed pipeline sequence.
type Stage string

// ErrUnknownStage is returned when a stage identifier is not part of the
// configured pipeline sequence.
var ErrUnknownStage = errors.New("unknown pipeline stage")

// The pipeline stages in backend execution order.
const (
	StagePreprocess     Stage = "preprocess"
	StageDetection      Stage = "dino"
	StageTracking       Stage = "tracking"
	StageReconstruction Stage = "reconstruction"
	StageSceneGraphs    Stage = "scene_graphs"
	StageSpatialGraph   Stage = "graph"
	StageEvents         Stage = "events"
	StageMemory         Stage = "memory"
	StageNarrator       Stage = "vlm"
)

// stageOrder defines the canonical execution order. Reveal ordering during
// snapshot catch-up is derived from this sequence, never from arrival order.
var stageOrder = []Stage{
	StagePreprocess,
	StageDetection,
	StageTracking,
	StageReconstruction,
	StageSceneGraphs,
	StageSpatialGraph,
	StageEvents,
	StageMemory,
	StageNarrator,
}

var stageTitles = map[Stage]string{
	StagePreprocess:     "Keyframe Extraction",
	StageDetection:      "Object Detection",
	StageTracking:       "Object Tracking",
	StageReconstruction: "3D Reconstruction",
	StageSceneGraphs:    "Scene Graphs",
	StageSpatialGraph:   "Spatial Graph",
	StageEvents:         "Event Extraction",
	StageMemory:         "Spatial Memory",
	StageNarrator:       "VLM Narrator",
}

// Stages returns the pipeline stages in execution order. The returned slice
// is a copy and safe for callers to retain.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage converts a stage identifier from the wire into a Stage.
// It returns ErrUnknownStage for identifiers outside the fixed sequence.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if _, ok := stageTitles[stage]; !ok {
		return "", ErrUnknownStage
	}
	return stage, nil
}

// String returns the string representation of the Stage.
func (s Stage) String() string { return string(s) }

// Title returns a human readable name for the stage.
func (s Stage) Title() string {
	if title, ok := stageTitles[s]; ok {
		return title
	}
	return string(s)
}
