package ui

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "screenspec/internal/canvas"
	"screenspec/internal/state"
	"screenspec/internal/surface"
)

func newDoc(t *testing.T, tool state.Tool) *engine.Canvas {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 150))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	s, err := surface.FromImage(img)
	require.NoError(t, err)
	doc := engine.New(surface.Loaded(s), engine.WithDefaults(tool, state.Style{Color: "#ff0000", StrokeSize: 2}))
	t.Cleanup(func() { doc.Close() })
	return doc
}

func mouse(x, y float32) *desktop.MouseEvent {
	return &desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)}, Button: desktop.MouseButtonPrimary}
}

func TestViewportZoomLimits(t *testing.T) {
	vp := NewViewport()
	for i := 0; i < 20; i++ {
		vp.ZoomIn()
	}
	assert.InDelta(t, maxZoom, vp.Zoom(), 1e-6)
	for i := 0; i < 40; i++ {
		vp.ZoomOut()
	}
	assert.InDelta(t, minZoom, vp.Zoom(), 1e-6)
	vp.Reset()
	vp.ZoomIn()
	assert.InDelta(t, 1.2, vp.Zoom(), 1e-6)
}

func TestViewportMapping(t *testing.T) {
	vp := NewViewport()
	vp.SetZoom(2)

	pos, size := vp.Place(fyne.NewSize(1000, 400), 200, 150)
	assert.Equal(t, fyne.NewSize(400, 300), size)
	assert.Equal(t, fyne.NewPos(300, 50), pos)

	p := vp.ToImage(fyne.NewPos(320, 70), fyne.NewSize(1000, 400), 200, 150)
	assert.InDelta(t, 10, p.X, 1e-6)
	assert.InDelta(t, 10, p.Y, 1e-6)

	vp.Fit(fyne.NewSize(440, 190), 200, 150)
	assert.InDelta(t, 1.0, vp.Zoom(), 1e-6)
}

func TestEditorWidgetDragCommits(t *testing.T) {
	test.NewTempApp(t)
	doc := newDoc(t, state.ToolRectangle)
	w := NewEditorWidget(doc, NewViewport(), nil)
	w.Resize(fyne.NewSize(200, 150))
	changed := 0
	w.OnChanged = func() { changed++ }

	w.MouseDown(mouse(10, 20))
	w.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(40, 50)}})
	assert.Equal(t, engine.Dragging, doc.State().Mode)
	w.MouseUp(mouse(60, 80))
	w.DragEnd()

	require.Equal(t, 1, doc.Len())
	assert.Equal(t, 1, changed)
	assert.Equal(t, state.Rectangle{StartX: 10, StartY: 20, EndX: 60, EndY: 80, Color: "#ff0000", StrokeSize: 2,
		CreatedAt: doc.Annotations()[0].Created()}, doc.Annotations()[0])
	assert.Equal(t, desktop.CrosshairCursor, w.Cursor())
}

func TestEditorWidgetTextTap(t *testing.T) {
	test.NewTempApp(t)
	doc := newDoc(t, state.ToolText)
	w := NewEditorWidget(doc, NewViewport(), nil)
	w.Resize(fyne.NewSize(200, 150))

	var asked *state.Point
	w.OnTextRequested = func(at state.Point) { asked = &at }
	w.Tapped(&fyne.PointEvent{Position: fyne.NewPos(30, 40)})

	require.NotNil(t, asked)
	assert.Equal(t, state.Point{X: 30, Y: 40}, *asked)
	assert.Equal(t, engine.TextPending, doc.State().Mode)
	require.NoError(t, doc.PlaceText("Login button"))
	assert.Equal(t, 1, doc.Len())
	assert.Equal(t, desktop.TextCursor, w.Cursor())
}

func TestEditorWidgetRendersView(t *testing.T) {
	test.NewTempApp(t)
	doc := newDoc(t, state.ToolArrow)
	w := NewEditorWidget(doc, NewViewport(), nil)
	r := test.WidgetRenderer(w)
	assert.Equal(t, fyne.NewSize(200, 150), r.MinSize())
	assert.Len(t, r.Objects(), 2)
}
