package pipeline

import (
	"reflect"
	"sync"

	"github.com/ironsite/pipewatch/pkg/common/timeutil"
)

// ObserverFunc receives the post-mutation record for every accepted apply.
// Observers are invoked synchronously, after the table's own state is
// consistent, and must not call back into the table.
type ObserverFunc func(StageStatus)

// StatusTable is the authoritative, ordered mapping from Stage to StageStatus
// for one run session. Both the push listener and the snapshot reconciler
// funnel every mutation through Apply, which enforces the terminal-state
// invariant so stale or out-of-order updates can never regress a finished
// stage. Iteration order always matches pipeline execution order.
type StatusTable struct {
	mu      sync.Mutex
	order   []Stage
	records map[Stage]StageStatus

	obsMu     sync.RWMutex
	observers map[int]ObserverFunc
	nextObsID int

	timeProvider timeutil.Provider
}

// StatusTableOption configures a StatusTable.
type StatusTableOption func(*StatusTable)

// WithTimeProvider sets a custom time provider. Used for testing.
func WithTimeProvider(tp timeutil.Provider) StatusTableOption {
	return func(t *StatusTable) { t.timeProvider = tp }
}

// NewStatusTable creates a table covering every stage in the fixed pipeline
// sequence, all initialized to Pending.
func NewStatusTable(opts ...StatusTableOption) *StatusTable {
	t := &StatusTable{
		order:        Stages(),
		records:      make(map[Stage]StageStatus, len(stageOrder)),
		observers:    make(map[int]ObserverFunc),
		timeProvider: timeutil.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, stage := range t.order {
		t.records[stage] = NewStageStatus(stage)
	}
	return t
}

// Get returns the current record for a stage. It never fails for a stage in
// the configured sequence; unknown stages yield a Pending default.
func (t *StatusTable) Get(stage Stage) StageStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[stage]; ok {
		return rec
	}
	return NewStageStatus(stage)
}

// Snapshot returns every record in pipeline execution order.
func (t *StatusTable) Snapshot() []StageStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StageStatus, 0, len(t.order))
	for _, stage := range t.order {
		out = append(out, t.records[stage])
	}
	return out
}

// Apply merges a partial update into the stage's record. State changes are
// validated against the stage lifecycle: once a stage is Completed or Failed,
// an update carrying a non-terminal state is dropped without error, though a
// metadata refresh in the same update is still applied. Observers are
// notified once per accepted apply, after the mutation is visible.
//
// The returned bool reports whether the stored record changed; re-applying an
// identical update is a no-op.
func (t *StatusTable) Apply(stage Stage, update StageUpdate) (StageStatus, bool, error) {
	t.mu.Lock()

	rec, ok := t.records[stage]
	if !ok {
		t.mu.Unlock()
		return StageStatus{}, false, ErrUnknownStage
	}

	changed := false

	if update.State != "" && update.State != rec.state {
		if err := rec.state.validateTransition(update.State); err == nil {
			rec.state = update.State
			changed = true

			switch update.State {
			case StageStateCompleted:
				rec.progress = 1
			case StageStateFailed:
				rec.errorDetail = update.ErrorDetail
			}
		}
		// An invalid transition (a stale message arriving after a terminal
		// state, or out of order within the run) drops the state portion of
		// the update; the rest of the update still merges below.
	}

	if update.Progress != nil && !rec.state.IsTerminal() && *update.Progress != rec.progress {
		rec.progress = *update.Progress
		changed = true
	}

	if update.Metadata != nil && !reflect.DeepEqual(update.Metadata, rec.metadata) {
		rec.metadata = update.Metadata
		changed = true
	}

	if changed {
		rec.updatedAt = t.timeProvider.Now()
		t.records[stage] = rec
	}
	t.mu.Unlock()

	if changed {
		t.notify(rec)
	}
	return rec, changed, nil
}

// Reset clears all stages back to the initial Pending table for a new run
// session. Observers are not notified; a reset is a discard, not a mutation
// consumers should render as stage activity.
func (t *StatusTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, stage := range t.order {
		t.records[stage] = NewStageStatus(stage)
	}
}

// Subscribe registers an observer for accepted mutations. The returned
// function cancels the subscription.
func (t *StatusTable) Subscribe(fn ObserverFunc) func() {
	t.obsMu.Lock()
	id := t.nextObsID
	t.nextObsID++
	t.observers[id] = fn
	t.obsMu.Unlock()

	return func() {
		t.obsMu.Lock()
		delete(t.observers, id)
		t.obsMu.Unlock()
	}
}

func (t *StatusTable) notify(rec StageStatus) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()

	for _, fn := range t.observers {
		fn(rec)
	}
}
