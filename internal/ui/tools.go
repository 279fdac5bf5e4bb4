package ui

import (
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"screenspec/internal/state"
)

// Palette is the set of swatches offered in the toolbar.
var Palette = []state.Color{"#ff0000", "#ff9900", "#ffff00", "#00ff00", "#0000ff", "#ff00ff", "#000000", "#ffffff"}

var toolLabels = map[state.Tool]string{
	state.ToolText:      "Text",
	state.ToolArrow:     "Arrow",
	state.ToolRectangle: "Frame",
	state.ToolHighlight: "Highlight",
	state.ToolCircle:    "Circle",
}

type colorSwatch struct {
	widget.BaseWidget
	Color    state.Color
	OnTapped func(state.Color)
}

func newColorSwatch(c state.Color, tapped func(state.Color)) *colorSwatch {
	s := &colorSwatch{Color: c, OnTapped: tapped}
	s.ExtendBaseWidget(s)
	return s
}

func (s *colorSwatch) CreateRenderer() fyne.WidgetRenderer {
	fill, err := s.Color.NRGBA(1)
	if err != nil {
		fill = color.NRGBA{A: 255}
	}
	rect := canvas.NewRectangle(fill)
	rect.SetMinSize(fyne.NewSize(24, 24))

	border := canvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	return widget.NewSimpleRenderer(container.NewStack(rect, border))
}

func (s *colorSwatch) Tapped(_ *fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped(s.Color)
	}
}

func zoomText(z float32) string { return fmt.Sprintf("%.0f%%", z*100) }

// newToolbar builds the editor controls: tools, colors, stroke size, history,
// zoom and document actions.
func (ed *Editor) newToolbar() fyne.CanvasObject {
	names := make([]string, 0, len(toolLabels))
	byName := make(map[string]state.Tool, len(toolLabels))
	for _, t := range state.Tools() {
		names = append(names, toolLabels[t])
		byName[toolLabels[t]] = t
	}
	tools := widget.NewRadioGroup(names, func(name string) {
		if t, ok := byName[name]; ok {
			ed.doc.SelectTool(t)
		}
	})
	tools.Horizontal = true
	tools.Required = true
	tools.SetSelected(toolLabels[ed.doc.State().Tool])

	current := canvas.NewRectangle(color.Black)
	current.SetMinSize(fyne.NewSize(24, 24))
	setCurrent := func(c state.Color) {
		if fill, err := c.NRGBA(1); err == nil {
			current.FillColor = fill
			current.Refresh()
		}
	}
	setCurrent(ed.doc.Style().Color)
	swatches := container.NewHBox()
	for _, c := range Palette {
		swatches.Add(newColorSwatch(c, func(c state.Color) {
			if err := ed.doc.SetColor(string(c)); err == nil {
				setCurrent(c)
			}
		}))
	}

	sizeLabel := widget.NewLabel(fmt.Sprint(ed.doc.Style().StrokeSize))
	stroke := widget.NewSlider(1, 20)
	stroke.Step = 1
	stroke.SetValue(float64(ed.doc.Style().StrokeSize))
	stroke.OnChanged = func(v float64) {
		if err := ed.doc.SetStrokeSize(int(v)); err == nil {
			sizeLabel.SetText(fmt.Sprint(int(v)))
		}
	}
	strokeBox := container.New(layout.NewGridWrapLayout(fyne.NewSize(120, 35)), stroke)

	ed.zoomLabel = widget.NewLabel(zoomText(ed.vp.Zoom()))
	actions := widget.NewToolbar(
		widget.NewToolbarAction(theme.ContentUndoIcon(), ed.undo),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), ed.save),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ZoomOutIcon(), ed.zoomOut),
		widget.NewToolbarAction(theme.ZoomInIcon(), ed.zoomIn),
		widget.NewToolbarAction(theme.ZoomFitIcon(), ed.zoomFit),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.InfoIcon(), ed.showMetadata),
	)
	if ed.opts.Export != nil {
		actions.Append(widget.NewToolbarAction(theme.DocumentPrintIcon(), ed.showExport))
	}

	return container.NewVBox(
		container.NewHBox(widget.NewLabel("Tool:"), tools, layout.NewSpacer(), actions, ed.zoomLabel),
		container.NewHBox(
			widget.NewLabel("Color:"), current, swatches,
			widget.NewSeparator(),
			widget.NewLabel("Size:"), strokeBox, sizeLabel,
			layout.NewSpacer(),
		),
	)
}
