package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/oklog/ulid/v2"
)

const defaultBackground = "#ffffff"

type (
	// Point is a single sampled position of a freehand stroke.
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Stroke is a completed freehand line.
	Stroke struct {
		ID     string  `json:"id"`
		Brush  Brush   `json:"brush"`
		Points []Point `json:"points"`
	}

	// Object is a whole shape placed or removed in one edit.
	Object struct {
		ID     string  `json:"id"`
		Kind   string  `json:"kind"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
		Fill   string  `json:"fill,omitempty"`
	}

	// sceneDoc is the serialized form of the full scene state: every
	// drawable element, the background, and the view transform.
	sceneDoc struct {
		Width      int      `json:"width"`
		Height     int      `json:"height"`
		Background string   `json:"background"`
		ViewX      float64  `json:"viewX"`
		ViewY      float64  `json:"viewY"`
		Zoom       float64  `json:"zoom"`
		Strokes    []Stroke `json:"strokes"`
		Objects    []Object `json:"objects"`
	}
)

// Scene is an in-memory vector drawing surface. It implements Surface.
type Scene struct {
	mu        sync.Mutex
	doc       sceneDoc
	brush     Brush
	active    *Stroke
	listeners map[EventType]map[int]Listener
	nextID    int
}

// NewScene creates a scene bound to a rendering target of the given pixel
// dimensions.
func NewScene(width, height int) *Scene {
	return &Scene{
		doc: sceneDoc{
			Width:      width,
			Height:     height,
			Background: defaultBackground,
			Zoom:       1,
		},
		brush:     Brush{Width: 4, Color: "#1a1a1a"},
		listeners: make(map[EventType]map[int]Listener),
	}
}

func (s *Scene) SetBrush(brush Brush) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brush = brush
}

// BeginStroke starts a freehand stroke with the current brush.
func (s *Scene) BeginStroke(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &Stroke{
		ID:     ulid.Make().String(),
		Brush:  s.brush,
		Points: []Point{{X: x, Y: y}},
	}
}

// StrokeTo extends the active stroke. No-op if no stroke is in progress.
func (s *Scene) StrokeTo(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return
	}
	s.active.Points = append(s.active.Points, Point{X: x, Y: y})
}

// EndStroke commits the active stroke and fires EventStrokeCompleted.
func (s *Scene) EndStroke() {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return
	}
	stroke := *s.active
	s.active = nil
	s.doc.Strokes = append(s.doc.Strokes, stroke)
	s.mu.Unlock()

	s.emit(Event{Type: EventStrokeCompleted, ObjectID: stroke.ID})
}

// AddObject places a whole shape and fires EventObjectAdded.
func (s *Scene) AddObject(obj Object) string {
	if obj.ID == "" {
		obj.ID = ulid.Make().String()
	}
	s.mu.Lock()
	s.doc.Objects = append(s.doc.Objects, obj)
	s.mu.Unlock()

	s.emit(Event{Type: EventObjectAdded, ObjectID: obj.ID})
	return obj.ID
}

// RemoveObject deletes a shape by id and fires EventObjectRemoved if it
// existed.
func (s *Scene) RemoveObject(id string) bool {
	s.mu.Lock()
	found := false
	kept := s.doc.Objects[:0]
	for _, obj := range s.doc.Objects {
		if obj.ID == id {
			found = true
			continue
		}
		kept = append(kept, obj)
	}
	s.doc.Objects = kept
	s.mu.Unlock()

	if found {
		s.emit(Event{Type: EventObjectRemoved, ObjectID: id})
	}
	return found
}

// Clear removes every element and resets the background and view transform.
// It does not fire mutation events; the history engine records clears itself.
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.doc.Strokes = nil
	s.doc.Objects = nil
	s.doc.Background = defaultBackground
	s.doc.ViewX, s.doc.ViewY, s.doc.Zoom = 0, 0, 1
}

// SetBackground changes the canvas background color.
func (s *Scene) SetBackground(color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Background = color
}

// SetView updates the view transform (pan offset and zoom).
func (s *Scene) SetView(x, y, zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.ViewX, s.doc.ViewY, s.doc.Zoom = x, y, zoom
}

// ElementCount returns the number of drawable elements currently on the
// scene, reported as submission metadata.
func (s *Scene) ElementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Strokes) + len(s.doc.Objects)
}

// Serialize returns the full scene state as an opaque JSON string.
func (s *Scene) Serialize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Restore replaces the scene state with a previously serialized snapshot.
// Malformed data is rejected synchronously and the scene is left untouched.
// The loaded callback fires once the new state is applied.
func (s *Scene) Restore(data string, loaded func()) error {
	var doc sceneDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	s.mu.Lock()
	s.active = nil
	s.doc = doc
	s.mu.Unlock()

	if loaded != nil {
		// Completion is signalled asynchronously, matching the callback
		// contract of rendering surfaces that apply state on a later frame.
		go loaded()
	}
	return nil
}

// On attaches a listener for an event type and returns a registration id for
// detaching it later.
func (s *Scene) On(event EventType, fn Listener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.listeners[event] == nil {
		s.listeners[event] = make(map[int]Listener)
	}
	s.listeners[event][s.nextID] = fn
	return s.nextID
}

// Off detaches a listener previously registered with On.
func (s *Scene) Off(event EventType, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners[event], id)
}

// emit invokes listeners outside the scene lock so they may call back into
// the scene (e.g. to serialize it).
func (s *Scene) emit(ev Event) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners[ev.Type]))
	for _, fn := range s.listeners[ev.Type] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// ExportPNG rasterizes the scene for the submission upload pipeline.
func (s *Scene) ExportPNG() ([]byte, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()

	if doc.Width <= 0 || doc.Height <= 0 {
		return nil, fmt.Errorf("export: invalid canvas dimensions %dx%d", doc.Width, doc.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, doc.Width, doc.Height))
	bg := parseHexColor(doc.Background)
	for y := 0; y < doc.Height; y++ {
		for x := 0; x < doc.Width; x++ {
			img.Set(x, y, bg)
		}
	}

	for _, obj := range doc.Objects {
		fillRect(img, obj)
	}
	for _, stroke := range doc.Strokes {
		drawStroke(img, stroke)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawStroke(img *image.RGBA, stroke Stroke) {
	c := parseHexColor(stroke.Brush.Color)
	r := int(stroke.Brush.Width / 2)
	if r < 1 {
		r = 1
	}
	for i := 0; i < len(stroke.Points); i++ {
		stampDot(img, stroke.Points[i], r, c)
		if i > 0 {
			// Fill the gap between samples with intermediate dots.
			prev, cur := stroke.Points[i-1], stroke.Points[i]
			steps := int(max(abs(cur.X-prev.X), abs(cur.Y-prev.Y)))
			for j := 1; j < steps; j++ {
				t := float64(j) / float64(steps)
				stampDot(img, Point{
					X: prev.X + (cur.X-prev.X)*t,
					Y: prev.Y + (cur.Y-prev.Y)*t,
				}, r, c)
			}
		}
	}
}

func stampDot(img *image.RGBA, p Point, r int, c color.RGBA) {
	cx, cy := int(p.X), int(p.Y)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.Set(cx+dx, cy+dy, c)
			}
		}
	}
}

func fillRect(img *image.RGBA, obj Object) {
	c := parseHexColor(obj.Fill)
	for y := int(obj.Y); y < int(obj.Y+obj.Height); y++ {
		for x := int(obj.X); x < int(obj.X+obj.Width); x++ {
			img.Set(x, y, c)
		}
	}
}

func parseHexColor(s string) color.RGBA {
	c := color.RGBA{A: 0xff}
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}
	}
	c.R, c.G, c.B = r, g, b
	return c
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
