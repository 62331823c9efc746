package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ironsite/pipewatch/internal/app/progress"
	"github.com/ironsite/pipewatch/internal/config"
	"github.com/ironsite/pipewatch/internal/domain/events"
	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/internal/infra/backend"
	"github.com/ironsite/pipewatch/internal/infra/eventbus/memory"
	"github.com/ironsite/pipewatch/internal/infra/stream"
	"github.com/ironsite/pipewatch/internal/ui"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

const serviceType = "pipewatch"

func main() {
	_, _ = maxprocs.Set()

	var (
		configPath = flag.String("config", "", "path to the JSON config file")
		videoPath  = flag.String("video", "", "video file to upload and analyze")
		runID      = flag.String("run", "", "attach to an already running pipeline")
		skipVLM    = flag.Bool("skip-vlm", false, "skip the narrator stage")
	)
	flag.Parse()

	instanceID := uuid.NewString()

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	metadata := map[string]string{
		"service":     serviceType,
		"instance_id": instanceID,
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithMetadata(os.Stderr, parseLogLevel(cfg.LogLevel), serviceType, nil, logEvents, metadata)
	tracer := otel.Tracer(serviceType)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	client := backend.NewClient(cfg.BackendURL, log, tracer)

	id, err := resolveRun(ctx, client, *videoPath, *runID, *skipVLM)
	if err != nil {
		log.Error(ctx, "failed to start run", "error", err)
		os.Exit(1)
	}

	bus := memory.NewBroker()

	renderer := ui.NewRenderer(os.Stdout)
	if err := renderer.Attach(ctx, bus); err != nil {
		log.Error(ctx, "failed to attach renderer", "error", err)
		os.Exit(1)
	}

	// Terminal run states end the program; the scheduler stops itself but the
	// process needs its own signal to exit.
	runDone := make(chan pipeline.RunState, 1)
	err = bus.Subscribe(ctx, []events.EventType{events.EventTypeRunStateChanged},
		func(_ context.Context, evt events.DomainEvent) error {
			if p, ok := evt.Payload.(pipeline.RunStateEvent); ok && p.State.IsTerminal() {
				select {
				case runDone <- p.State:
				default:
				}
			}
			return nil
		})
	if err != nil {
		log.Error(ctx, "failed to subscribe run watcher", "error", err)
		os.Exit(1)
	}

	newListener := func(runID string, sess *progress.Session, onConnected func(context.Context)) progress.Runner {
		return stream.NewListener(cfg.WSEndpoint, runID, sess, onConnected, cfg.ReconnectDelay, log, tracer)
	}

	monitor := progress.NewMonitor(client, newListener, bus, progress.Config{
		PollInterval: cfg.PollInterval,
		StaggerDelay: cfg.StaggerDelay,
	}, log, tracer)

	monitor.Watch(ctx, id)

	g, gctx := errgroup.WithContext(ctx)

	var finalState pipeline.RunState
	g.Go(func() error {
		// Unblocks the signal watcher once the run is over.
		defer cancel()
		select {
		case finalState = <-runDone:
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Info(gctx, "Received shutdown signal", "signal", sig.String())
			monitor.Reset(context.Background())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	_ = g.Wait()

	if finalState == pipeline.RunStateFailed {
		log.Error(context.Background(), "Run failed", "run_id", id)
		os.Exit(1)
	}
}

// resolveRun determines the run to track: attach to an existing one, or
// upload the video and launch a fresh pipeline.
func resolveRun(ctx context.Context, client *backend.Client, videoPath, runID string, skipVLM bool) (string, error) {
	if runID != "" {
		return runID, nil
	}
	if videoPath == "" {
		return "", fmt.Errorf("either -video or -run is required")
	}

	upload, err := client.UploadVideo(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("uploading video: %w", err)
	}

	return client.StartRun(ctx, backend.RunConfig{
		VideoPath: upload.VideoPath,
		SkipVLM:   skipVLM,
	})
}

func parseLogLevel(level string) logger.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logger.LevelDebug
	case "WARN", "WARNING":
		return logger.LevelWarn
	case "ERROR":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
