package ui

import (
	"fyne.io/fyne/v2"

	"screenspec/internal/state"
)

const (
	minZoom  = 0.1
	maxZoom  = 3.0
	zoomStep = 1.2
)

// Viewport maps between widget coordinates and image pixels. The image is
// drawn scaled by the zoom and centered when it is smaller than the widget.
type Viewport struct {
	zoom float32
}

func NewViewport() *Viewport {
	return &Viewport{zoom: 1}
}

func (v *Viewport) Zoom() float32 { return v.zoom }

func (v *Viewport) SetZoom(z float32) {
	if z < minZoom {
		z = minZoom
	}
	if z > maxZoom {
		z = maxZoom
	}
	v.zoom = z
}

func (v *Viewport) ZoomIn()  { v.SetZoom(v.zoom * zoomStep) }
func (v *Viewport) ZoomOut() { v.SetZoom(v.zoom / zoomStep) }
func (v *Viewport) Reset()   { v.zoom = 1 }

// Scaled is the on-screen size of an image of w×h pixels.
func (v *Viewport) Scaled(w, h int) fyne.Size {
	return fyne.NewSize(float32(w)*v.zoom, float32(h)*v.zoom)
}

// Place returns where the image sits inside area.
func (v *Viewport) Place(area fyne.Size, w, h int) (fyne.Position, fyne.Size) {
	size := v.Scaled(w, h)
	var pos fyne.Position
	if size.Width < area.Width {
		pos.X = (area.Width - size.Width) / 2
	}
	if size.Height < area.Height {
		pos.Y = (area.Height - size.Height) / 2
	}
	return pos, size
}

// ToImage converts a widget position to image pixel coordinates. Points
// outside the image are not clamped.
func (v *Viewport) ToImage(p fyne.Position, area fyne.Size, w, h int) state.Point {
	origin, _ := v.Place(area, w, h)
	return state.Point{
		X: float64((p.X - origin.X) / v.zoom),
		Y: float64((p.Y - origin.Y) / v.zoom),
	}
}

// Fit zooms so the whole image fits inside area with a small margin.
func (v *Viewport) Fit(area fyne.Size, w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	const pad = 40
	zw := (area.Width - pad) / float32(w)
	zh := (area.Height - pad) / float32(h)
	v.SetZoom(min(zw, zh))
}

// FitWidth zooms so the image width fills area.
func (v *Viewport) FitWidth(area fyne.Size, w int) {
	if w <= 0 {
		return
	}
	v.SetZoom((area.Width - 40) / float32(w))
}
