package progress

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ironsite/pipewatch/internal/domain/events"
	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

// Runner is a background loop bound to one run session, typically the push
// listener. It runs until its context is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// ListenerFactory builds the push-channel listener for a new session. The
// sink receives decoded status transitions; onConnected fires on every
// successful (re)connection so the scheduler can run a catch-up pass.
type ListenerFactory func(runID string, sink *Session, onConnected func(context.Context)) Runner

// Config holds the synchronization core's timing knobs.
type Config struct {
	// PollInterval is the fixed interval of the snapshot polling safety net.
	PollInterval time.Duration

	// StaggerDelay is the fixed delay inserted between successive catch-up
	// reveals within one reconciliation pass.
	StaggerDelay time.Duration
}

// Monitor is the composition root of the synchronization core. It owns at
// most one live session; watching a new run cancels the previous session's
// listener, scheduler, and in-flight passes, and discards its status table
// entirely before the new session starts.
type Monitor struct {
	fetcher     pipeline.SnapshotFetcher
	newListener ListenerFactory
	bus         events.DomainEventPublisher
	cfg         Config

	mu      sync.Mutex
	current *Session

	logger *logger.Logger
	tracer trace.Tracer
}

// NewMonitor creates a monitor over the given pull channel and push listener
// factory.
func NewMonitor(
	fetcher pipeline.SnapshotFetcher,
	newListener ListenerFactory,
	bus events.DomainEventPublisher,
	cfg Config,
	log *logger.Logger,
	tracer trace.Tracer,
) *Monitor {
	return &Monitor{
		fetcher:     fetcher,
		newListener: newListener,
		bus:         bus,
		cfg:         cfg,
		logger:      log,
		tracer:      tracer,
	}
}

// Watch begins tracking runID, replacing any previous session. The returned
// session is live immediately; its listener and scheduler run until the run
// terminates, Reset is called, or a newer run supersedes it.
func (m *Monitor) Watch(ctx context.Context, runID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardLocked(ctx)

	sess := newSession(ctx, runID, m.bus, m.logger, m.tracer)
	sess.publish(events.DomainEvent{
		Type:    events.EventTypeRunStateChanged,
		Key:     runID,
		Payload: pipeline.NewRunStateEvent(runID, pipeline.RunStateRunning),
	})

	reconciler := NewReconciler(m.fetcher, m.cfg.StaggerDelay, m.logger, m.tracer)
	scheduler := NewScheduler(m.cfg.PollInterval, reconciler, sess, m.logger, m.tracer)
	listener := m.newListener(runID, sess, func(context.Context) { scheduler.TriggerNow() })

	go scheduler.Run(sess.Context())
	go listener.Run(sess.Context())

	m.current = sess
	m.logger.Info(ctx, "Watching run", "run_id", runID)
	return sess
}

// Reset discards the current session, returning the monitor to idle. Any
// in-flight fetch or stagger delay belonging to the old session resolves as a
// no-op.
func (m *Monitor) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discardLocked(ctx)
}

// Session returns the current session, or nil when idle.
func (m *Monitor) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RunState returns the overall state: Idle when no session exists, otherwise
// the current session's run state.
func (m *Monitor) RunState() pipeline.RunState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return pipeline.RunStateIdle
	}
	return m.current.RunState()
}

func (m *Monitor) discardLocked(ctx context.Context) {
	if m.current == nil {
		return
	}
	old := m.current
	m.current = nil
	old.close()

	m.logger.Info(ctx, "Run session discarded", "run_id", old.RunID())
	if m.bus != nil {
		evt := events.DomainEvent{
			Type:    events.EventTypeSessionReset,
			Key:     old.RunID(),
			Payload: pipeline.NewSessionResetEvent(old.RunID()),
		}
		if err := m.bus.PublishDomainEvent(ctx, evt); err != nil {
			m.logger.Warn(ctx, "Failed to publish session reset", "error", err)
		}
	}
}
