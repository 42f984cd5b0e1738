// Package history provides bounded, branch-pruning undo/redo over a drawing
// surface. The engine owns the surface for the duration of a drawing session:
// nothing else may mutate it, so the snapshot stream stays authoritative.
package history

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sketchvote/canvas"
)

const (
	// DefaultLimit bounds the snapshot stack on regular devices.
	DefaultLimit = 50
	// ConstrainedLimit is the recommended bound on memory-constrained
	// (mobile) devices.
	ConstrainedLimit = 20

	// DefaultDebounce collapses bursts of stroke-completion events into a
	// single history entry.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultRestoreTimeout force-resolves a restore whose completion
	// callback never fires.
	DefaultRestoreTimeout = 150 * time.Millisecond
)

// Option configures an Engine.
type Option func(*Engine)

func WithLimit(n int) Option {
	return func(e *Engine) {
		if n > 1 {
			e.limit = n
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounce = d
		}
	}
}

func WithRestoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.restoreTimeout = d
		}
	}
}

type registration struct {
	event canvas.EventType
	id    int
}

// Engine captures serialized surface snapshots on every mutation and replays
// them for undo/redo. All coordination state is instance-owned; two engines
// on two surfaces never interfere.
type Engine struct {
	mu             sync.Mutex
	surface        canvas.Surface
	limit          int
	debounce       time.Duration
	restoreTimeout time.Duration

	entries []string // snapshot stack, oldest first
	index   int      // current position in entries
	redo    []string // snapshots popped by undo

	restoring bool // set while an undo/redo restore is in flight
	closed    bool
	attached  bool
	pending   *time.Timer // debounce timer for stroke captures
	regs      []registration

	log *logrus.Entry
}

// New wraps a surface, captures its initial state as the first history entry,
// and attaches mutation listeners.
func New(surface canvas.Surface, opts ...Option) (*Engine, error) {
	e := &Engine{
		surface:        surface,
		limit:          DefaultLimit,
		debounce:       DefaultDebounce,
		restoreTimeout: DefaultRestoreTimeout,
		log:            logrus.WithField("component", "history"),
	}
	for _, opt := range opts {
		opt(e)
	}

	initial, err := surface.Serialize()
	if err != nil {
		return nil, err
	}
	e.entries = []string{initial}
	e.index = 0

	e.attach()
	return e, nil
}

// CaptureSoon schedules a debounced capture. Rapid successive calls within
// the debounce window collapse into one history entry.
func (e *Engine) CaptureSoon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.restoring {
		return
	}
	if e.pending != nil {
		e.pending.Stop()
	}
	e.pending = time.AfterFunc(e.debounce, func() {
		e.CaptureNow("stroke")
	})
}

// CaptureNow serializes the surface and appends the snapshot immediately.
// It is a no-op while a restore is in flight (the restore would otherwise be
// recorded as a new edit) and when the state is identical to the current
// entry. Capturing discards any redo branch beyond the current index and
// evicts the oldest entries once the bound is exceeded.
func (e *Engine) CaptureNow(trigger string) bool {
	e.mu.Lock()
	if e.closed || e.restoring {
		e.mu.Unlock()
		return false
	}
	e.stopPendingLocked()
	e.mu.Unlock()

	snap, err := e.surface.Serialize()
	if err != nil {
		e.log.WithError(err).WithField("trigger", trigger).Warn("Failed to serialize surface, capture skipped")
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.restoring {
		return false
	}
	if e.entries[e.index] == snap {
		return false
	}

	e.entries = append(e.entries[:e.index+1], snap)
	if len(e.entries) > e.limit {
		e.entries = e.entries[len(e.entries)-e.limit:]
	}
	e.index = len(e.entries) - 1
	e.redo = e.redo[:0]

	e.log.WithFields(logrus.Fields{
		"trigger": trigger,
		"entries": len(e.entries),
		"index":   e.index,
	}).Debug("Snapshot captured")
	return true
}

// Undo restores the previous snapshot. Returns false without touching the
// stack when there is nothing to undo, another undo/redo is in flight, or
// the snapshot fails to restore.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	if e.closed || e.restoring || e.index <= 0 {
		e.mu.Unlock()
		return false
	}
	e.restoring = true
	e.stopPendingLocked()
	current := e.entries[e.index]
	target := e.entries[e.index-1]
	e.mu.Unlock()

	// Listeners must come off before the restore: applying a snapshot
	// re-fires the same add/remove events used to detect user edits, and the
	// in-flight flag alone does not stop that internal bookkeeping.
	e.detach()
	err := e.restore(target)
	e.attach()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.restoring = false
	if err != nil {
		e.log.WithError(err).Warn("Undo restore failed, history unchanged")
		return false
	}
	e.redo = append(e.redo, current)
	e.index--
	return true
}

// Redo restores the most recently undone snapshot. Returns false when the
// redo stack is empty, an operation is in flight, or the restore fails.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	if e.closed || e.restoring || len(e.redo) == 0 {
		e.mu.Unlock()
		return false
	}
	e.restoring = true
	e.stopPendingLocked()
	target := e.redo[len(e.redo)-1]
	e.mu.Unlock()

	e.detach()
	err := e.restore(target)
	e.attach()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.restoring = false
	if err != nil {
		e.log.WithError(err).Warn("Redo restore failed, history unchanged")
		return false
	}
	e.redo = e.redo[:len(e.redo)-1]
	e.index++
	return true
}

// Clear empties the surface and captures the cleared state immediately, so
// the clear itself is undoable.
func (e *Engine) Clear() bool {
	e.mu.Lock()
	if e.closed || e.restoring {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	e.surface.Clear()
	return e.CaptureNow("clear")
}

// Close detaches listeners and stops the pending debounce timer. The engine
// is unusable afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopPendingLocked()
	e.mu.Unlock()

	e.detach()
}

// CanUndo reports whether an undo would have an effect.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && !e.restoring && e.index > 0
}

// CanRedo reports whether a redo would have an effect.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && !e.restoring && len(e.redo) > 0
}

// Len returns the number of snapshots on the history stack.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Index returns the current position on the history stack.
func (e *Engine) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

// restore applies a snapshot and waits for the surface to signal completion,
// bounded by the restore timeout since the callback is not guaranteed to
// fire. A synchronous error means the snapshot was unparseable and nothing
// was applied.
func (e *Engine) restore(snapshot string) error {
	done := make(chan struct{}, 1)
	err := e.surface.Restore(snapshot, func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(e.restoreTimeout):
		e.log.Debug("Restore completion callback never fired, forced by timeout")
	}
	return nil
}

func (e *Engine) attach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attached || e.closed {
		return
	}
	e.regs = []registration{
		{canvas.EventStrokeCompleted, e.surface.On(canvas.EventStrokeCompleted, func(canvas.Event) {
			e.CaptureSoon()
		})},
		{canvas.EventObjectAdded, e.surface.On(canvas.EventObjectAdded, func(canvas.Event) {
			e.CaptureNow("object-added")
		})},
		{canvas.EventObjectRemoved, e.surface.On(canvas.EventObjectRemoved, func(canvas.Event) {
			e.CaptureNow("object-removed")
		})},
	}
	e.attached = true
}

func (e *Engine) detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached {
		return
	}
	for _, reg := range e.regs {
		e.surface.Off(reg.event, reg.id)
	}
	e.regs = nil
	e.attached = false
}

func (e *Engine) stopPendingLocked() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}
