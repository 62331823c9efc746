package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ironsite/pipewatch/internal/domain/events"
	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

// recordingBus captures published domain events in order.
type recordingBus struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (b *recordingBus) PublishDomainEvent(_ context.Context, evt events.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func (b *recordingBus) all() []events.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.DomainEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBus) byType(t events.EventType) []events.DomainEvent {
	var out []events.DomainEvent
	for _, evt := range b.all() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func newTestSession(t *testing.T, bus events.DomainEventPublisher) *Session {
	t.Helper()
	sess := newSession(context.Background(), "run-1", bus,
		logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	t.Cleanup(sess.close)
	return sess
}

func TestSessionStartsRunning(t *testing.T) {
	sess := newTestSession(t, nil)

	assert.Equal(t, pipeline.RunStateRunning, sess.RunState())
	assert.False(t, sess.Done())
	assert.Equal(t, "run-1", sess.RunID())
}

func TestSessionApplyStagePublishesEvent(t *testing.T) {
	bus := &recordingBus{}
	sess := newTestSession(t, bus)

	err := sess.ApplyStage(context.Background(), pipeline.StagePreprocess,
		pipeline.StageUpdate{State: pipeline.StageStateStarted})
	require.NoError(t, err)

	published := bus.byType(events.EventTypeStageStatusUpdated)
	require.Len(t, published, 1)

	payload, ok := published[0].Payload.(pipeline.StageStatusEvent)
	require.True(t, ok)
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, pipeline.StagePreprocess, payload.Status.Stage())
	assert.Equal(t, pipeline.StageStateStarted, payload.Status.State())
}

func TestSessionApplyStageNoOpDoesNotPublish(t *testing.T) {
	bus := &recordingBus{}
	sess := newTestSession(t, bus)

	update := pipeline.StageUpdate{State: pipeline.StageStateStarted}
	require.NoError(t, sess.ApplyStage(context.Background(), pipeline.StageDetection, update))
	require.NoError(t, sess.ApplyStage(context.Background(), pipeline.StageDetection, update))

	assert.Len(t, bus.byType(events.EventTypeStageStatusUpdated), 1,
		"an identical re-apply must not publish a second event")
}

func TestSessionCompleteRun(t *testing.T) {
	bus := &recordingBus{}
	sess := newTestSession(t, bus)

	sess.CompleteRun(context.Background())

	assert.Equal(t, pipeline.RunStateCompleted, sess.RunState())
	assert.True(t, sess.Done())

	published := bus.byType(events.EventTypeRunStateChanged)
	require.Len(t, published, 1)
	payload := published[0].Payload.(pipeline.RunStateEvent)
	assert.Equal(t, pipeline.RunStateCompleted, payload.State)
}

func TestSessionRunStateIsMonotonic(t *testing.T) {
	bus := &recordingBus{}
	sess := newTestSession(t, bus)

	sess.SetRunState(context.Background(), pipeline.RunStateCompleted)
	// A late failure signal must not flip a completed run.
	sess.SetRunState(context.Background(), pipeline.RunStateFailed)

	assert.Equal(t, pipeline.RunStateCompleted, sess.RunState())
	assert.Len(t, bus.byType(events.EventTypeRunStateChanged), 1)
}

func TestSessionRunStateRepeatSignalIsNoOp(t *testing.T) {
	bus := &recordingBus{}
	sess := newTestSession(t, bus)

	sess.CompleteRun(context.Background())
	sess.CompleteRun(context.Background())

	assert.Len(t, bus.byType(events.EventTypeRunStateChanged), 1)
}

func TestSessionClosedSessionDropsWrites(t *testing.T) {
	bus := &recordingBus{}
	sess := newTestSession(t, bus)
	sess.close()

	// A stale async operation resolving after reset must not mutate anything.
	err := sess.ApplyStage(context.Background(), pipeline.StageTracking,
		pipeline.StageUpdate{State: pipeline.StageStateStarted})
	require.NoError(t, err)
	sess.SetRunState(context.Background(), pipeline.RunStateFailed)

	assert.Equal(t, pipeline.StageStatePending, sess.Table().Get(pipeline.StageTracking).State())
	assert.Equal(t, pipeline.RunStateRunning, sess.RunState())
	assert.Empty(t, bus.byType(events.EventTypeStageStatusUpdated))
	assert.Empty(t, bus.byType(events.EventTypeRunStateChanged))
}

func TestSessionCurrentStage(t *testing.T) {
	sess := newTestSession(t, nil)

	assert.Empty(t, sess.CurrentStage())
	sess.setCurrentStage("tracking")
	assert.Equal(t, "tracking", sess.CurrentStage())
}
