// Package backend implements the HTTP client for the pipeline backend's
// pull-side API: launching runs, uploading videos, and fetching full status
// snapshots for reconciliation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

// supported upload container formats, matching the backend's allow list.
var supportedVideoExts = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {},
}

// Client talks to the pipeline backend over HTTP. All transport failures are
// returned to callers as wrapped errors; the synchronization core decides
// whether they are surfaced or silently retried.
type Client struct {
	baseURL    string
	httpClient *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClient creates a backend API client rooted at baseURL.
func NewClient(baseURL string, logger *logger.Logger, tracer trace.Tracer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "backend_client"),
		tracer:     tracer,
	}
}

// FetchStatus retrieves the full status snapshot for a run. The snapshot is
// the backend's latest known truth at fetch time and may momentarily lag or
// lead the push channel.
func (c *Client) FetchStatus(ctx context.Context, runID string) (*RunSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "backend_client.fetch_status",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+runID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status fetch failed")
		return nil, fmt.Errorf("fetching status for run %s: %w", runID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "unexpected status code")
		return nil, fmt.Errorf("fetching status for run %s: unexpected status %d", runID, resp.StatusCode)
	}

	var snapshot RunSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decoding snapshot failed")
		return nil, fmt.Errorf("decoding status snapshot: %w", err)
	}
	span.AddEvent("snapshot_fetched", trace.WithAttributes(
		attribute.Int("step_count", len(snapshot.Steps)),
		attribute.String("overall_status", snapshot.Status),
	))
	span.SetStatus(codes.Ok, "snapshot fetched")

	return &snapshot, nil
}

// FetchSnapshot implements the domain's pull channel port by fetching the
// wire snapshot and translating it into the domain's remote view.
func (c *Client) FetchSnapshot(ctx context.Context, runID string) (*pipeline.RemoteSnapshot, error) {
	snapshot, err := c.FetchStatus(ctx, runID)
	if err != nil {
		return nil, err
	}
	return snapshot.ToDomain(), nil
}

// StartRun launches the pipeline for the given configuration and returns the
// backend-assigned run id.
func (c *Client) StartRun(ctx context.Context, cfg RunConfig) (string, error) {
	ctx, span := c.tracer.Start(ctx, "backend_client.start_run",
		trace.WithAttributes(attribute.String("video_path", cfg.VideoPath)))
	defer span.End()

	body, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding run config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run request failed")
		return "", fmt.Errorf("starting run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "unexpected status code")
		return "", fmt.Errorf("starting run: unexpected status %d", resp.StatusCode)
	}

	var started startRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return "", fmt.Errorf("decoding run response: %w", err)
	}
	span.AddEvent("run_started", trace.WithAttributes(attribute.String("run_id", started.RunID)))
	span.SetStatus(codes.Ok, "run started")

	c.logger.Info(ctx, "Pipeline run started", "run_id", started.RunID)
	return started.RunID, nil
}

// UploadVideo streams a local video file to the backend and returns the
// server-side path to hand to StartRun. The extension check mirrors the
// backend's own validation so unsupported formats fail before the transfer.
func (c *Client) UploadVideo(ctx context.Context, path string) (*UploadResult, error) {
	ctx, span := c.tracer.Start(ctx, "backend_client.upload_video",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := supportedVideoExts[ext]; !ok {
		return nil, fmt.Errorf("unsupported video format: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening video file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("creating multipart form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading video file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, fmt.Errorf("uploading video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "unexpected status code")
		return nil, fmt.Errorf("uploading video: unexpected status %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	span.SetStatus(codes.Ok, "video uploaded")

	c.logger.Info(ctx, "Video uploaded", "video_path", result.VideoPath, "size_mb", result.SizeMB)
	return &result, nil
}
