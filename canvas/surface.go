package canvas

// EventType identifies a mutation event fired by a drawing surface.
type EventType string

const (
	// EventStrokeCompleted fires when a freehand stroke is finished. These
	// arrive in rapid bursts while the user draws, so consumers are expected
	// to debounce them.
	EventStrokeCompleted EventType = "stroke:completed"

	// EventObjectAdded and EventObjectRemoved fire on discrete structural
	// edits and should be handled immediately.
	EventObjectAdded   EventType = "object:added"
	EventObjectRemoved EventType = "object:removed"
)

// Event carries the mutation that occurred and the element it touched.
type Event struct {
	Type     EventType
	ObjectID string
}

// Listener receives surface mutation events.
type Listener func(Event)

// Brush configures the freehand drawing tool.
type Brush struct {
	Width float64 `json:"width"`
	Color string  `json:"color"`
}

// Surface is the contract a drawing surface must satisfy for the history
// engine to wrap it: full-state serialization, asynchronous restore, clear,
// and mutation events with dynamically attachable listeners.
//
// Restore reports malformed input synchronously via its error return. The
// loaded callback signals that the restored state is fully applied; callers
// must not rely on it firing and should pair the wait with a timeout.
type Surface interface {
	Serialize() (string, error)
	Restore(data string, loaded func()) error
	Clear()
	SetBrush(brush Brush)
	On(event EventType, fn Listener) int
	Off(event EventType, id int)
}
