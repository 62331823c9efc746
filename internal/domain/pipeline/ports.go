package pipeline

import "context"

// RemoteStageStatus is the pull channel's view of one stage at fetch time.
type RemoteStageStatus struct {
	State       StageState
	Progress    float64
	Metadata    map[string]any
	ErrorDetail string
}

// StageUpdate converts the remote view into a status table update.
func (r RemoteStageStatus) StageUpdate() StageUpdate {
	return StageUpdate{
		State:       r.State,
		Progress:    Float(r.Progress),
		Metadata:    r.Metadata,
		ErrorDetail: r.ErrorDetail,
	}
}

// RemoteSnapshot is the pull channel's full view of a run: every known stage
// plus the backend's overall run status. It is strongly consistent from the
// backend's point of view but may race with push frames in either direction;
// consumers must compare before applying and rely on the status table's
// terminal invariant to resolve such races.
type RemoteSnapshot struct {
	RunID        string
	State        RunState
	CurrentStage string
	Stages       map[Stage]RemoteStageStatus
}

// SnapshotFetcher is the pull channel port: it returns the backend's latest
// known status for every stage of a run.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, runID string) (*RemoteSnapshot, error)
}
