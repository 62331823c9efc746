// Package ui renders synchronization events as styled terminal output. It is
// a passive consumer of the event bus and never feeds back into the core.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ironsite/pipewatch/internal/domain/events"
	"github.com/ironsite/pipewatch/internal/domain/pipeline"
)

const progressBarWidth = 24

// Renderer writes one styled line per synchronization event. Lines are
// serialized so concurrent handlers never interleave partial output.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewRenderer creates a renderer writing to out, typically os.Stdout.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Attach subscribes the renderer to the bus for the lifetime of ctx.
func (r *Renderer) Attach(ctx context.Context, bus events.EventBus) error {
	types := []events.EventType{
		events.EventTypeStageStatusUpdated,
		events.EventTypeRunStateChanged,
		events.EventTypeSessionReset,
	}
	return bus.Subscribe(ctx, types, r.handle)
}

func (r *Renderer) handle(_ context.Context, evt events.DomainEvent) error {
	switch p := evt.Payload.(type) {
	case pipeline.StageStatusEvent:
		r.printStage(p.Status)
	case pipeline.RunStateEvent:
		r.printRunState(p.RunID, p.State)
	case pipeline.SessionResetEvent:
		r.println(mutedStyle.Render(fmt.Sprintf("— run %s discarded —", p.RunID)))
	}
	return nil
}

func (r *Renderer) printStage(status pipeline.StageStatus) {
	glyph := stateGlyph(status.State())
	title := stateStyle(status.State()).Render(fmt.Sprintf("%-28s", status.Stage().Title()))

	line := glyph + " " + title
	switch status.State() {
	case pipeline.StageStateInProgress:
		line += " " + progressBar(status.Progress())
	case pipeline.StageStateFailed:
		if detail := status.ErrorDetail(); detail != "" {
			line += " " + errorStyle.Render(detail)
		}
	}
	r.println(line)
}

func (r *Renderer) printRunState(runID string, state pipeline.RunState) {
	switch state {
	case pipeline.RunStateRunning:
		r.println(accentStyle.Render("●") + " Tracking run " + boldStyle.Render(runID))
	case pipeline.RunStateCompleted:
		r.println(successStyle.Render("✓") + " Run " + runID + " completed")
	case pipeline.RunStateFailed:
		r.println(errorStyle.Render("✗") + " Run " + runID + " failed")
	}
}

func (r *Renderer) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}

// progressBar renders a fixed-width bar plus percentage, e.g. "███░░░  45%".
func progressBar(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * progressBarWidth)
	bar := activeStyle.Render(strings.Repeat("█", filled)) +
		faintStyle.Render(strings.Repeat("░", progressBarWidth-filled))
	return bar + mutedStyle.Render(fmt.Sprintf(" %3.0f%%", fraction*100))
}
