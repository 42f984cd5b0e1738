package canvas

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSerializeRestoreRoundtrip(t *testing.T) {
	scene := NewScene(200, 100)
	scene.SetBrush(Brush{Width: 6, Color: "#ff0000"})
	scene.BeginStroke(10, 10)
	scene.StrokeTo(50, 40)
	scene.EndStroke()
	scene.AddObject(Object{Kind: "rect", X: 60, Y: 20, Width: 30, Height: 30, Fill: "#00ff00"})
	scene.SetBackground("#f0f0f0")
	scene.SetView(5, 5, 1.5)

	data, err := scene.Serialize()
	require.NoError(t, err)

	restored := NewScene(1, 1)
	loaded := make(chan struct{})
	require.NoError(t, restored.Restore(data, func() { close(loaded) }))
	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("loaded callback never fired")
	}

	roundtrip, err := restored.Serialize()
	require.NoError(t, err)
	require.JSONEq(t, data, roundtrip)
	require.Equal(t, 2, restored.ElementCount())
}

func TestRestoreRejectsMalformedData(t *testing.T) {
	scene := NewScene(100, 100)
	scene.AddObject(Object{Kind: "rect", Width: 10, Height: 10})

	err := scene.Restore("{not json", func() {
		t.Error("loaded callback fired for malformed data")
	})
	require.Error(t, err)
	require.Equal(t, 1, scene.ElementCount())
}

func TestStrokeEventsFire(t *testing.T) {
	scene := NewScene(100, 100)

	events := make(chan Event, 4)
	id := scene.On(EventStrokeCompleted, func(ev Event) { events <- ev })

	scene.BeginStroke(1, 1)
	scene.StrokeTo(2, 2)
	scene.EndStroke()

	select {
	case ev := <-events:
		require.Equal(t, EventStrokeCompleted, ev.Type)
		require.NotEmpty(t, ev.ObjectID)
	default:
		t.Fatal("no stroke event fired")
	}

	// A detached listener stays silent.
	scene.Off(EventStrokeCompleted, id)
	scene.BeginStroke(3, 3)
	scene.EndStroke()
	require.Empty(t, events)
}

func TestObjectEventsFire(t *testing.T) {
	scene := NewScene(100, 100)

	var added, removed []string
	scene.On(EventObjectAdded, func(ev Event) { added = append(added, ev.ObjectID) })
	scene.On(EventObjectRemoved, func(ev Event) { removed = append(removed, ev.ObjectID) })

	id := scene.AddObject(Object{Kind: "rect", Width: 10, Height: 10})
	require.Equal(t, []string{id}, added)

	require.False(t, scene.RemoveObject("missing"))
	require.Empty(t, removed)

	require.True(t, scene.RemoveObject(id))
	require.Equal(t, []string{id}, removed)
	require.Equal(t, 0, scene.ElementCount())
}

func TestListenerMayReenterScene(t *testing.T) {
	scene := NewScene(100, 100)

	serialized := make(chan string, 1)
	scene.On(EventStrokeCompleted, func(Event) {
		data, err := scene.Serialize()
		require.NoError(t, err)
		serialized <- data
	})

	scene.BeginStroke(1, 1)
	scene.EndStroke()

	select {
	case data := <-serialized:
		require.Contains(t, data, "strokes")
	case <-time.After(time.Second):
		t.Fatal("listener deadlocked")
	}
}

func TestClearResetsEverything(t *testing.T) {
	scene := NewScene(100, 100)
	scene.BeginStroke(1, 1)
	scene.EndStroke()
	scene.AddObject(Object{Kind: "rect", Width: 10, Height: 10})
	scene.SetBackground("#000000")
	scene.SetView(10, 10, 2)

	scene.Clear()
	require.Equal(t, 0, scene.ElementCount())

	data, err := scene.Serialize()
	require.NoError(t, err)
	require.Contains(t, data, `"background":"#ffffff"`)
	require.Contains(t, data, `"zoom":1`)
}

func TestExportPNG(t *testing.T) {
	scene := NewScene(64, 64)
	scene.AddObject(Object{Kind: "rect", X: 10, Y: 10, Width: 20, Height: 20, Fill: "#ff0000"})
	scene.SetBrush(Brush{Width: 4, Color: "#0000ff"})
	scene.BeginStroke(40, 40)
	scene.StrokeTo(50, 50)
	scene.EndStroke()

	data, err := scene.ExportPNG()
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, 64, img.Bounds().Dy())

	r, g, b, _ := img.At(2, 2).RGBA()
	require.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})

	r, g, b, _ = img.At(15, 15).RGBA()
	require.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})

	r, g, b, _ = img.At(45, 45).RGBA()
	require.Equal(t, []uint32{0, 0, 0xffff}, []uint32{r, g, b})
}

func TestExportPNGRejectsInvalidDimensions(t *testing.T) {
	scene := NewScene(0, 0)
	_, err := scene.ExportPNG()
	require.Error(t, err)
}
