// Package stream implements the push side of progress synchronization: a
// WebSocket listener that subscribes to the backend's per-run event channel,
// decodes step-status frames, and forwards them into the status table through
// the session's mutation API.
//
// Delivery on this channel is at-most-once: frames sent before the
// subscription exists, or while the connection is down, are simply lost. The
// listener therefore only ever improves freshness; the snapshot reconciler is
// the correctness safety net.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironsite/pipewatch/internal/domain/pipeline"
	"github.com/ironsite/pipewatch/pkg/common/logger"
)

// ConnState represents the listener's connection state machine.
type ConnState int32

const (
	// StateDisconnected indicates no connection exists.
	StateDisconnected ConnState = iota
	// StateConnecting indicates a dial is in flight.
	StateConnecting
	// StateConnected indicates an open subscription.
	StateConnected
)

// String returns the string representation of the ConnState.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// StatusSink receives validated status transitions decoded from the push
// channel. It is implemented by the run session, whose mutation API enforces
// the terminal-state invariant so stale frames can never regress a stage.
type StatusSink interface {
	// ApplyStage merges a partial update into one stage's record.
	ApplyStage(ctx context.Context, stage pipeline.Stage, update pipeline.StageUpdate) error

	// CompleteRun records the backend's explicit run-completion signal.
	CompleteRun(ctx context.Context)
}

// Listener maintains a live subscription to the progress socket for one run
// session. Connection drops are retried indefinitely with a fixed delay for
// the life of the session's context; cancelling the context is the clean,
// client-initiated close and terminates the listener for good.
type Listener struct {
	endpoint string
	runID    string

	sink        StatusSink
	onConnected func(ctx context.Context)

	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	state          atomic.Int32

	logger *logger.Logger
	tracer trace.Tracer
}

// NewListener creates a listener for runID against the backend's WebSocket
// endpoint (e.g. "ws://localhost:8000"). onConnected fires each time a
// subscription is (re)established, so the caller can trigger a snapshot
// catch-up pass for anything missed while disconnected.
func NewListener(
	endpoint string,
	runID string,
	sink StatusSink,
	onConnected func(ctx context.Context),
	reconnectDelay time.Duration,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Listener {
	return &Listener{
		endpoint:       endpoint,
		runID:          runID,
		sink:           sink,
		onConnected:    onConnected,
		reconnectDelay: reconnectDelay,
		dialer:         websocket.DefaultDialer,
		logger:         logger.With("component", "push_listener", "run_id", runID),
		tracer:         tracer,
	}
}

// State returns the current connection state.
func (l *Listener) State() ConnState { return ConnState(l.state.Load()) }

// Run drives the connect/read/reconnect loop until ctx is cancelled. It never
// returns a transport error; push-channel unreliability is routine and the
// polling reconciler covers correctness while the socket is down.
func (l *Listener) Run(ctx context.Context) {
	defer l.state.Store(int32(StateDisconnected))

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := l.connect(ctx)
		if err != nil {
			// Only context cancellation escapes the dial retry loop.
			return
		}

		l.state.Store(int32(StateConnected))
		l.logger.Info(ctx, "Push channel connected")
		if l.onConnected != nil {
			l.onConnected(ctx)
		}

		l.readLoop(ctx, conn)
		l.state.Store(int32(StateDisconnected))

		if ctx.Err() != nil {
			return
		}
		l.logger.Warn(ctx, "Push channel dropped, reconnecting", "delay", l.reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.reconnectDelay):
		}
	}
}

// connect dials the progress socket, retrying on a fixed interval until the
// dial succeeds or ctx is cancelled.
func (l *Listener) connect(ctx context.Context) (*websocket.Conn, error) {
	l.state.Store(int32(StateConnecting))

	wsURL, err := url.JoinPath(l.endpoint, "ws", l.runID)
	if err != nil {
		return nil, fmt.Errorf("building socket url: %w", err)
	}

	var conn *websocket.Conn
	operation := func() error {
		var dialErr error
		conn, _, dialErr = l.dialer.DialContext(ctx, wsURL, nil)
		if dialErr != nil {
			l.logger.Debug(ctx, "Push channel dial failed", "error", dialErr)
			return dialErr
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(l.reconnectDelay), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("dialing push channel: %w", err)
	}
	return conn, nil
}

// readLoop consumes frames until the connection drops or ctx is cancelled.
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	// Unblock ReadMessage when the session is torn down.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, websocket.ErrCloseSent) {
				l.logger.Debug(ctx, "Push channel read failed", "error", err)
			}
			return
		}
		l.handleFrame(ctx, data)
	}
}

// handleFrame decodes and dispatches a single frame. A malformed or
// unrecognized frame is dropped; it never affects the connection or other
// frames.
func (l *Listener) handleFrame(ctx context.Context, data []byte) {
	ctx, span := l.tracer.Start(ctx, "push_listener.handle_frame")
	defer span.End()

	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Warn(ctx, "Dropping undecodable push frame", "error", err)
		return
	}
	span.SetAttributes(attribute.String("message_type", msg.Type))

	switch msg.Type {
	case msgTypeStepStatus:
		stage, err := pipeline.ParseStage(msg.Step)
		if err != nil {
			l.logger.Warn(ctx, "Dropping frame for unknown stage", "step", msg.Step)
			return
		}
		span.SetAttributes(
			attribute.String("stage", stage.String()),
			attribute.String("status", msg.Status),
		)

		if err := l.sink.ApplyStage(ctx, stage, msg.stageUpdate()); err != nil {
			l.logger.Warn(ctx, "Push update rejected", "stage", stage, "error", err)
		}

	case msgTypePipelineComplete:
		span.AddEvent("pipeline_complete_received")
		l.sink.CompleteRun(ctx)

	default:
		l.logger.Debug(ctx, "Dropping frame with unknown type", "type", msg.Type)
	}
}
