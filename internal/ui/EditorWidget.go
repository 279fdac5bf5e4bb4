package ui

import (
	"image/color"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	engine "screenspec/internal/canvas"
	"screenspec/internal/state"
)

// EditorWidget shows the working image of a canvas and turns mouse input into
// canvas gestures in image coordinates.
type EditorWidget struct {
	widget.BaseWidget
	doc    *engine.Canvas
	vp     *Viewport
	logger *slog.Logger

	// OnTextRequested runs when a click with the text tool left the canvas
	// waiting for a label.
	OnTextRequested func(at state.Point)
	// OnChanged runs after a gesture was committed.
	OnChanged func()
	OnError   func(error)

	down bool
	last fyne.Position
}

var (
	_ fyne.Widget        = (*EditorWidget)(nil)
	_ fyne.Draggable     = (*EditorWidget)(nil)
	_ fyne.Tappable      = (*EditorWidget)(nil)
	_ desktop.Mouseable  = (*EditorWidget)(nil)
	_ desktop.Cursorable = (*EditorWidget)(nil)
)

func NewEditorWidget(doc *engine.Canvas, vp *Viewport, logger *slog.Logger) *EditorWidget {
	if logger == nil {
		logger = slog.Default()
	}
	e := &EditorWidget{doc: doc, vp: vp, logger: logger}
	e.ExtendBaseWidget(e)
	return e
}

func (e *EditorWidget) point(pos fyne.Position) state.Point {
	w, h := e.doc.Size()
	return e.vp.ToImage(pos, e.Size(), w, h)
}

func (e *EditorWidget) report(err error) {
	if err == nil {
		return
	}
	e.logger.Debug("Editor: gesture rejected", "error", err)
	if e.OnError != nil {
		e.OnError(err)
	}
}

func (e *EditorWidget) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	e.down = true
	e.last = ev.Position
	e.report(e.doc.PointerDown(e.point(ev.Position)))
}

func (e *EditorWidget) Dragged(ev *fyne.DragEvent) {
	if !e.down {
		return
	}
	e.last = ev.Position
	e.report(e.doc.PointerMove(e.point(ev.Position)))
	e.Refresh()
}

func (e *EditorWidget) DragEnd() { e.finish(e.last) }

func (e *EditorWidget) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button == desktop.MouseButtonPrimary {
		e.finish(ev.Position)
	}
}

func (e *EditorWidget) finish(pos fyne.Position) {
	if !e.down {
		return
	}
	e.down = false
	before := e.doc.Len()
	e.report(e.doc.PointerUp(e.point(pos)))
	e.Refresh()
	if e.doc.Len() != before && e.OnChanged != nil {
		e.OnChanged()
	}
}

func (e *EditorWidget) Tapped(ev *fyne.PointEvent) {
	if e.doc.State().Tool != state.ToolText {
		return
	}
	e.report(e.doc.Click(e.point(ev.Position)))
	if st := e.doc.State(); st.Mode == engine.TextPending && e.OnTextRequested != nil {
		e.OnTextRequested(st.Anchor)
	}
}

func (e *EditorWidget) MouseIn(*desktop.MouseEvent)    {}
func (e *EditorWidget) MouseOut()                      {}
func (e *EditorWidget) MouseMoved(*desktop.MouseEvent) {}

func (e *EditorWidget) Cursor() desktop.Cursor {
	switch e.doc.Cursor() {
	case engine.CursorText:
		return desktop.TextCursor
	case engine.CursorCrosshair:
		return desktop.CrosshairCursor
	}
	return desktop.DefaultCursor
}

func (e *EditorWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &editorRenderer{
		editor:     e,
		background: canvas.NewRectangle(color.NRGBA{R: 245, G: 246, B: 248, A: 255}),
		image:      canvas.NewImageFromImage(nil),
	}
	if view := e.doc.View(); view != nil {
		r.image.Image = view
	}
	r.image.FillMode = canvas.ImageFillStretch
	r.image.ScaleMode = canvas.ImageScaleSmooth
	return r
}

type editorRenderer struct {
	editor     *EditorWidget
	background *canvas.Rectangle
	image      *canvas.Image
}

func (r *editorRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)
	w, h := r.editor.doc.Size()
	pos, scaled := r.editor.vp.Place(size, w, h)
	r.image.Move(pos)
	r.image.Resize(scaled)
}

func (r *editorRenderer) MinSize() fyne.Size {
	w, h := r.editor.doc.Size()
	return r.editor.vp.Scaled(w, h)
}

func (r *editorRenderer) Refresh() {
	if view := r.editor.doc.View(); view != nil {
		r.image.Image = view
	}
	r.Layout(r.editor.Size())
	r.image.Refresh()
	canvas.Refresh(r.editor)
}

func (r *editorRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.background, r.image}
}

func (r *editorRenderer) Destroy() {}
