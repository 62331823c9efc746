package progress

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironsite/pipewatch/pkg/common/logger"
)

// Scheduler decides when the reconciler runs for one session: once
// immediately when the push channel (re)connects, and thereafter on a fixed
// interval as a polling safety net. All passes execute on the scheduler's own
// goroutine, so two passes can never run concurrently against the same status
// table; a tick that fires while a pass (including its stagger delays) is
// still in flight is simply absorbed by the ticker.
type Scheduler struct {
	interval   time.Duration
	reconciler *Reconciler
	session    *Session

	trigger chan struct{}

	logger *logger.Logger
	tracer trace.Tracer
}

// NewScheduler creates a scheduler driving the reconciler for one session.
func NewScheduler(
	interval time.Duration,
	reconciler *Reconciler,
	session *Session,
	log *logger.Logger,
	tracer trace.Tracer,
) *Scheduler {
	return &Scheduler{
		interval:   interval,
		reconciler: reconciler,
		session:    session,
		trigger:    make(chan struct{}, 1),
		logger:     log.With("component", "sync_scheduler", "run_id", session.RunID()),
		tracer:     tracer,
	}
}

// TriggerNow requests an immediate reconciliation pass. Safe to call from any
// goroutine; requests arriving while a pass is pending coalesce into one.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until the session's run reaches a terminal state or ctx is
// cancelled. The interval ticker starts with the first triggered pass, i.e.
// once the push channel has connected.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "sync_scheduler.run",
		trace.WithAttributes(attribute.String("interval", s.interval.String())))
	defer span.End()

	// Wait for the catch-up trigger from the first successful connection.
	select {
	case <-ctx.Done():
		return
	case <-s.trigger:
	}
	span.AddEvent("initial_pass_triggered")

	if done := s.pass(ctx); done {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.trigger:
			if done := s.pass(ctx); done {
				return
			}

		case <-ticker.C:
			if done := s.pass(ctx); done {
				return
			}
		}
	}
}

// pass executes one reconciliation pass and reports whether the scheduler
// should stop ticking.
func (s *Scheduler) pass(ctx context.Context) bool {
	if s.session.Done() {
		s.logger.Info(ctx, "Run reached terminal state, scheduler stopping",
			"state", s.session.RunState())
		return true
	}

	if err := s.reconciler.Reconcile(ctx, s.session); err != nil {
		// Reconcile only errors on cancellation; the session is gone.
		return true
	}

	if s.session.Done() {
		s.logger.Info(ctx, "Run reached terminal state, scheduler stopping",
			"state", s.session.RunState())
		return true
	}
	return false
}
