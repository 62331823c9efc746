package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimeProvider struct{ current time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.current }

func TestStatusTableStartsAllPending(t *testing.T) {
	table := NewStatusTable()

	snapshot := table.Snapshot()
	require.Len(t, snapshot, 9)
	for i, rec := range snapshot {
		assert.Equal(t, Stages()[i], rec.Stage(), "snapshot must follow execution order")
		assert.Equal(t, StageStatePending, rec.State())
		assert.Zero(t, rec.Progress())
	}
}

func TestStatusTableApply_StateProgression(t *testing.T) {
	table := NewStatusTable()

	rec, changed, err := table.Apply(StageTracking, StageUpdate{State: StageStateStarted})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StageStateStarted, rec.State())

	rec, changed, err = table.Apply(StageTracking, StageUpdate{
		State:    StageStateInProgress,
		Progress: Float(0.4),
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StageStateInProgress, rec.State())
	assert.Equal(t, 0.4, rec.Progress())
}

func TestStatusTableApply_CompletionForcesFullProgress(t *testing.T) {
	table := NewStatusTable()

	_, _, err := table.Apply(StageDetection, StageUpdate{
		State:    StageStateInProgress,
		Progress: Float(0.6),
	})
	require.NoError(t, err)

	rec, changed, err := table.Apply(StageDetection, StageUpdate{State: StageStateCompleted})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StageStateCompleted, rec.State())
	assert.Equal(t, 1.0, rec.Progress())
}

func TestStatusTableApply_FailureCapturesDetail(t *testing.T) {
	table := NewStatusTable()

	rec, changed, err := table.Apply(StageReconstruction, StageUpdate{
		State:       StageStateFailed,
		ErrorDetail: "bundle adjustment diverged",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StageStateFailed, rec.State())
	assert.Equal(t, "bundle adjustment diverged", rec.ErrorDetail())
}

func TestStatusTableApply_TerminalStateNeverRegresses(t *testing.T) {
	tests := []struct {
		name     string
		terminal StageState
		stale    StageUpdate
	}{
		{
			name:     "completed ignores late started",
			terminal: StageStateCompleted,
			stale:    StageUpdate{State: StageStateStarted},
		},
		{
			name:     "completed ignores late progress",
			terminal: StageStateCompleted,
			stale:    StageUpdate{State: StageStateInProgress, Progress: Float(0.3)},
		},
		{
			name:     "failed ignores late completion",
			terminal: StageStateFailed,
			stale:    StageUpdate{State: StageStateCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewStatusTable()
			_, _, err := table.Apply(StageEvents, StageUpdate{State: tt.terminal})
			require.NoError(t, err)

			rec, changed, err := table.Apply(StageEvents, tt.stale)
			require.NoError(t, err)
			assert.False(t, changed, "stale update must be a no-op")
			assert.Equal(t, tt.terminal, rec.State())
		})
	}
}

func TestStatusTableApply_TerminalStageKeepsProgress(t *testing.T) {
	table := NewStatusTable()

	_, _, err := table.Apply(StageMemory, StageUpdate{State: StageStateCompleted})
	require.NoError(t, err)

	rec, changed, err := table.Apply(StageMemory, StageUpdate{Progress: Float(0.2)})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1.0, rec.Progress(), "progress on a finished stage must stay pinned")
}

func TestStatusTableApply_MetadataMergesPastStaleState(t *testing.T) {
	table := NewStatusTable()

	_, _, err := table.Apply(StageSceneGraphs, StageUpdate{State: StageStateCompleted})
	require.NoError(t, err)

	// The state portion is stale but the metadata refresh still lands.
	rec, changed, err := table.Apply(StageSceneGraphs, StageUpdate{
		State:    StageStateInProgress,
		Metadata: map[string]any{"graphs": 12},
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StageStateCompleted, rec.State())
	assert.Equal(t, map[string]any{"graphs": 12}, rec.Metadata())
}

func TestStatusTableApply_IdenticalUpdateIsNoOp(t *testing.T) {
	table := NewStatusTable()

	update := StageUpdate{
		State:    StageStateInProgress,
		Progress: Float(0.5),
		Metadata: map[string]any{"frames": 120},
	}

	_, changed, err := table.Apply(StagePreprocess, update)
	require.NoError(t, err)
	require.True(t, changed)

	before := table.Get(StagePreprocess)
	rec, changed, err := table.Apply(StagePreprocess, update)
	require.NoError(t, err)
	assert.False(t, changed, "re-applying an identical update must not mutate")
	assert.Equal(t, before, rec)
}

func TestStatusTableApply_UnknownStage(t *testing.T) {
	table := NewStatusTable()

	_, _, err := table.Apply(Stage("transcoding"), StageUpdate{State: StageStateStarted})
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestStatusTableApply_RecordsUpdateTime(t *testing.T) {
	tp := &mockTimeProvider{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	table := NewStatusTable(WithTimeProvider(tp))

	rec, _, err := table.Apply(StageSpatialGraph, StageUpdate{State: StageStateStarted})
	require.NoError(t, err)
	assert.Equal(t, tp.current, rec.UpdatedAt())

	// No mutation, no timestamp refresh.
	tp.current = tp.current.Add(time.Minute)
	rec, changed, err := table.Apply(StageSpatialGraph, StageUpdate{State: StageStateStarted})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NotEqual(t, tp.current, rec.UpdatedAt())
}

func TestStatusTableObservers(t *testing.T) {
	table := NewStatusTable()

	var seen []StageStatus
	cancel := table.Subscribe(func(rec StageStatus) { seen = append(seen, rec) })

	_, _, err := table.Apply(StagePreprocess, StageUpdate{State: StageStateStarted})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, StageStateStarted, seen[0].State())

	// A no-op apply must not notify.
	_, _, err = table.Apply(StagePreprocess, StageUpdate{State: StageStateStarted})
	require.NoError(t, err)
	assert.Len(t, seen, 1)

	cancel()
	_, _, err = table.Apply(StagePreprocess, StageUpdate{State: StageStateCompleted})
	require.NoError(t, err)
	assert.Len(t, seen, 1, "cancelled observers must not fire")
}

func TestStatusTableReset(t *testing.T) {
	table := NewStatusTable()

	var notifications int
	table.Subscribe(func(StageStatus) { notifications++ })

	_, _, err := table.Apply(StageDetection, StageUpdate{State: StageStateCompleted})
	require.NoError(t, err)
	require.Equal(t, 1, notifications)

	table.Reset()

	assert.Equal(t, StageStatePending, table.Get(StageDetection).State())
	assert.Equal(t, 1, notifications, "reset is a discard, not a mutation")
}
