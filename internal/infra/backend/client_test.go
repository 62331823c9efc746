package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
}

func strPtr(s string) *string { return &s }

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/status/run-42", r.URL.Path)

		resp := RunSnapshot{
			RunID:       "run-42",
			Status:      "running",
			CurrentStep: strPtr("tracking"),
			Steps: map[string]StepStatus{
				"preprocess": {Step: "preprocess", Status: "completed", Progress: 1},
				"dino":       {Step: "dino", Status: "completed", Progress: 1},
				"tracking":   {Step: "tracking", Status: "progress", Progress: 0.35},
				"mystery":    {Step: "mystery", Status: "started"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	snapshot, err := client.FetchSnapshot(context.Background(), "run-42")
	require.NoError(t, err)

	assert.Equal(t, "run-42", snapshot.RunID)
	assert.Equal(t, pipeline.RunStateRunning, snapshot.State)
	assert.Equal(t, "tracking", snapshot.CurrentStage)

	require.Len(t, snapshot.Stages, 3, "unknown steps are dropped")
	assert.Equal(t, pipeline.StageStateCompleted, snapshot.Stages[pipeline.StagePreprocess].State)
	assert.Equal(t, pipeline.StageStateInProgress, snapshot.Stages[pipeline.StageTracking].State)
	assert.Equal(t, 0.35, snapshot.Stages[pipeline.StageTracking].Progress)
}

func TestFetchSnapshotFailedStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := RunSnapshot{
			RunID:  "run-9",
			Status: "error",
			Steps: map[string]StepStatus{
				"reconstruction": {
					Step:   "reconstruction",
					Status: "error",
					Error:  strPtr("bundle adjustment diverged"),
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	snapshot, err := client.FetchSnapshot(context.Background(), "run-9")
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunStateFailed, snapshot.State)
	failed := snapshot.Stages[pipeline.StageReconstruction]
	assert.Equal(t, pipeline.StageStateFailed, failed.State)
	assert.Equal(t, "bundle adjustment diverged", failed.ErrorDetail)
}

func TestFetchStatusNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "run not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.FetchStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestStartRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/run", r.URL.Path)

		var cfg RunConfig
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		assert.Equal(t, "/uploads/demo.mp4", cfg.VideoPath)
		assert.True(t, cfg.SkipVLM)

		require.NoError(t, json.NewEncoder(w).Encode(startRunResponse{RunID: "run-7"}))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	runID, err := client.StartRun(context.Background(), RunConfig{
		VideoPath: "/uploads/demo.mp4",
		SkipVLM:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-7", runID)
}

func TestUploadVideo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "demo.mp4", header.Filename)

		require.NoError(t, json.NewEncoder(w).Encode(UploadResult{
			VideoPath: "/uploads/demo.mp4",
			Filename:  "demo.mp4",
			SizeMB:    0.01,
		}))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.UploadVideo(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/demo.mp4", result.VideoPath)
}

func TestUploadVideoRejectsUnsupportedFormat(t *testing.T) {
	client := newTestClient("http://localhost:0")

	_, err := client.UploadVideo(context.Background(), "clip.gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported video format")
}
