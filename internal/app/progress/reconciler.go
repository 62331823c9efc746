package progress

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

// Reconciler fetches full status snapshots from the pull channel and applies
// only the deltas to a session's status table, in pipeline order. When several
// stages must catch up at once (e.g. cached steps that completed instantly
// while the client was disconnected), it inserts a fixed stagger delay between
// successive applications so completion reveals one stage at a time instead of
// the whole table jumping to done.
type Reconciler struct {
	fetcher pipeline.SnapshotFetcher
	stagger time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// NewReconciler creates a reconciler over the given pull channel.
func NewReconciler(
	fetcher pipeline.SnapshotFetcher,
	stagger time.Duration,
	log *logger.Logger,
	tracer trace.Tracer,
) *Reconciler {
	return &Reconciler{
		fetcher: fetcher,
		stagger: stagger,
		logger:  log.With("component", "snapshot_reconciler"),
		tracer:  tracer,
	}
}

// stageDelta is one pending catch-up application, in pipeline order.
type stageDelta struct {
	stage  pipeline.Stage
	update pipeline.StageUpdate
}

// Reconcile runs one full pass for the session: fetch, diff, apply.
//
// A fetch failure aborts the pass silently; the next scheduled tick retries
// and transient pull-channel faults are never surfaced as errors. The only
// error returned is context cancellation, which means the session was
// superseded mid-pass.
func (r *Reconciler) Reconcile(ctx context.Context, sess *Session) error {
	ctx, span := r.tracer.Start(ctx, "snapshot_reconciler.reconcile",
		trace.WithAttributes(attribute.String("run_id", sess.RunID())))
	defer span.End()

	snapshot, err := r.fetcher.FetchSnapshot(ctx, sess.RunID())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot fetch failed")
		r.logger.Debug(ctx, "Snapshot fetch failed, pass skipped", "run_id", sess.RunID(), "error", err)
		return nil
	}

	deltas := r.collectDeltas(sess, snapshot)
	span.SetAttributes(attribute.Int("delta_count", len(deltas)))

	for i, delta := range deltas {
		// Stagger successive reveals so a multi-stage catch-up reads as a
		// sequence, not a simultaneous jump. A single changed stage applies
		// immediately. The delay is tied to the session's lifetime.
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sess.Context().Done():
				return sess.Context().Err()
			case <-time.After(r.stagger):
			}
		}

		if err := sess.ApplyStage(ctx, delta.stage, delta.update); err != nil {
			r.logger.Warn(ctx, "Snapshot update rejected", "stage", delta.stage, "error", err)
		}
	}

	sess.setCurrentStage(snapshot.CurrentStage)

	// The snapshot's overall status field is an explicit terminal signal;
	// per-stage completion alone never drives the run state.
	if snapshot.State.IsTerminal() {
		sess.SetRunState(ctx, snapshot.State)
	}

	span.SetStatus(codes.Ok, "pass complete")
	return nil
}

// collectDeltas walks the fixed stage sequence and returns, in pipeline
// order, every stage whose remote status differs from the local record.
// Remote Pending entries and already-matching records are skipped, so
// re-applying an unchanged snapshot yields no deltas.
func (r *Reconciler) collectDeltas(sess *Session, snapshot *pipeline.RemoteSnapshot) []stageDelta {
	var deltas []stageDelta

	for _, stage := range pipeline.Stages() {
		remote, ok := snapshot.Stages[stage]
		if !ok {
			continue
		}
		if remote.State == pipeline.StageStatePending || remote.State == pipeline.StageStateUnspecified {
			continue
		}

		local := sess.Table().Get(stage)
		if local.State() == remote.State && local.Progress() == remote.Progress {
			continue
		}

		deltas = append(deltas, stageDelta{stage: stage, update: remote.StageUpdate()})
	}
	return deltas
}
