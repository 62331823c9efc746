// Package progress implements the client-side progress synchronization core:
// one run session owning the authoritative status table, the snapshot
// reconciler that diffs the pull channel against it, and the scheduler that
// decides when reconciliation runs.
//
// Concurrency model: the push listener and the reconciler both mutate shared
// state, but every mutation path funnels through the session's apply methods
// and the status table's transition validation, so interleaved updates from
// the two channels can never regress a terminal stage. There is no other
// locking between the channels.
package progress

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironsite/pipewatch/internal/domain/events"
	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

// Session tracks one pipeline execution. It owns the status table and the
// run-level state for exactly one run id; starting a new run discards the
// whole session rather than merging into it.
type Session struct {
	runID string
	table *pipeline.StatusTable

	mu           sync.Mutex
	runState     pipeline.RunState
	currentStage string

	bus    events.DomainEventPublisher
	logger *logger.Logger
	tracer trace.Tracer

	// ctx is the session-scoped context; it is cancelled when the session is
	// superseded so in-flight work belonging to this session dies with it.
	ctx    context.Context
	cancel context.CancelFunc
}

// newSession creates a session for runID with an all-Pending table and
// RunState Running, and wires table mutations into the event bus.
func newSession(
	ctx context.Context,
	runID string,
	bus events.DomainEventPublisher,
	log *logger.Logger,
	tracer trace.Tracer,
	tableOpts ...pipeline.StatusTableOption,
) *Session {
	sessCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		runID:    runID,
		table:    pipeline.NewStatusTable(tableOpts...),
		runState: pipeline.RunStateRunning,
		bus:      bus,
		logger:   log.With("component", "run_session", "run_id", runID),
		tracer:   tracer,
		ctx:      sessCtx,
		cancel:   cancel,
	}

	s.table.Subscribe(func(rec pipeline.StageStatus) {
		s.publish(events.DomainEvent{
			Type:      events.EventTypeStageStatusUpdated,
			Key:       runID,
			Timestamp: rec.UpdatedAt(),
			Payload:   pipeline.NewStageStatusEvent(runID, rec),
		})
	})

	return s
}

// RunID returns the opaque run identifier this session tracks.
func (s *Session) RunID() string { return s.runID }

// Table returns the session's status table for read access by consumers.
func (s *Session) Table() *pipeline.StatusTable { return s.table }

// Context returns the session-scoped context. It is cancelled when the
// session is superseded or reset.
func (s *Session) Context() context.Context { return s.ctx }

// RunState returns the current overall run state.
func (s *Session) RunState() pipeline.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runState
}

// Done reports whether the run reached a terminal state.
func (s *Session) Done() bool { return s.RunState().IsTerminal() }

// CurrentStage returns the backend's most recently reported current step.
func (s *Session) CurrentStage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStage
}

// ApplyStage merges a partial update into one stage's record. Updates
// belonging to a superseded session are discarded, so a fetch or stagger
// delay that resolves after a reset cannot write into the new session's
// table. Implements the push listener's sink.
func (s *Session) ApplyStage(ctx context.Context, stage pipeline.Stage, update pipeline.StageUpdate) error {
	if s.ctx.Err() != nil {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "run_session.apply_stage",
		trace.WithAttributes(
			attribute.String("stage", stage.String()),
			attribute.String("state", update.State.String()),
		))
	defer span.End()

	rec, changed, err := s.table.Apply(stage, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply rejected")
		return err
	}

	if changed {
		span.AddEvent("stage_updated")
		s.logger.Debug(ctx, "Stage updated",
			"stage", stage, "state", rec.State(), "progress", rec.Progress())
	} else {
		span.AddEvent("apply_noop")
	}
	span.SetStatus(codes.Ok, "applied")
	return nil
}

// CompleteRun records the backend's explicit run-completion signal from the
// push channel. Implements the push listener's sink.
func (s *Session) CompleteRun(ctx context.Context) {
	s.SetRunState(ctx, pipeline.RunStateCompleted)
}

// SetRunState transitions the overall run state. Invalid transitions (in
// particular anything out of a terminal state) are dropped, keeping the run
// state monotonic regardless of which channel signals last.
func (s *Session) SetRunState(ctx context.Context, target pipeline.RunState) {
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.runState == target {
		s.mu.Unlock()
		return
	}
	if err := s.runState.ValidateTransition(target); err != nil {
		s.mu.Unlock()
		s.logger.Debug(ctx, "Dropping run state transition", "error", err)
		return
	}
	s.runState = target
	s.mu.Unlock()

	s.logger.Info(ctx, "Run state changed", "state", target)
	s.publish(events.DomainEvent{
		Type:    events.EventTypeRunStateChanged,
		Key:     s.runID,
		Payload: pipeline.NewRunStateEvent(s.runID, target),
	})
}

// setCurrentStage records the snapshot's current step for display.
func (s *Session) setCurrentStage(stage string) {
	s.mu.Lock()
	s.currentStage = stage
	s.mu.Unlock()
}

// close cancels all work scoped to this session.
func (s *Session) close() { s.cancel() }

func (s *Session) publish(evt events.DomainEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishDomainEvent(s.ctx, evt); err != nil && s.ctx.Err() == nil {
		s.logger.Warn(s.ctx, "Failed to publish domain event", "type", evt.Type, "error", err)
	}
}
