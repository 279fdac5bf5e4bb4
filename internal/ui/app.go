package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	engine "screenspec/internal/canvas"
	"screenspec/internal/state"
)

// Options configures the editor window.
type Options struct {
	Title  string
	Logger *slog.Logger
	// Export writes the project document; the toolbar hides export when nil.
	Export    func(ctx context.Context, w io.Writer) error
	ExportExt string
}

// Editor is the desktop window around one canvas.
type Editor struct {
	app    fyne.App
	win    fyne.Window
	doc    *engine.Canvas
	vp     *Viewport
	view   *EditorWidget
	scroll *container.Scroll
	status *widget.Label
	opts   Options
	logger *slog.Logger

	zoomLabel *widget.Label
}

func NewEditor(a fyne.App, doc *engine.Canvas, opts Options) *Editor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Title == "" {
		opts.Title = "Screen annotation"
	}
	ed := &Editor{
		app:    a,
		win:    a.NewWindow(opts.Title),
		doc:    doc,
		vp:     NewViewport(),
		status: widget.NewLabel("Loading image..."),
		opts:   opts,
		logger: opts.Logger,
	}
	ed.view = NewEditorWidget(doc, ed.vp, opts.Logger)
	ed.view.OnTextRequested = ed.promptText
	ed.view.OnChanged = ed.changed
	ed.view.OnError = func(err error) {
		if errors.Is(err, engine.ErrNotReady) {
			ed.setStatus("Image is still loading")
		}
	}
	ed.scroll = container.NewScroll(ed.view)

	ed.win.SetContent(container.NewBorder(ed.newToolbar(), ed.status, nil, nil, ed.scroll))
	ed.win.Resize(fyne.NewSize(1200, 800))
	ed.bindKeys()
	ed.win.SetCloseIntercept(ed.close)
	go ed.waitReady()
	return ed
}

// Window returns the editor window.
func (ed *Editor) Window() fyne.Window { return ed.win }

func (ed *Editor) ShowAndRun() { ed.win.ShowAndRun() }

func (ed *Editor) waitReady() {
	err := ed.doc.WaitReady(context.Background())
	fyne.Do(func() {
		if err != nil {
			ed.setStatus("Cannot open image")
			dialog.ShowError(err, ed.win)
			return
		}
		w, h := ed.doc.Size()
		ed.vp.Fit(ed.scroll.Size(), w, h)
		ed.refresh()
		ed.changed()
	})
}

func (ed *Editor) bindKeys() {
	c := ed.win.Canvas()
	bind := func(key fyne.KeyName, fn func()) {
		c.AddShortcut(&desktop.CustomShortcut{KeyName: key, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) { fn() })
	}
	bind(fyne.KeyZ, ed.undo)
	bind(fyne.KeyS, ed.save)
	bind(fyne.KeyEqual, ed.zoomIn)
	bind(fyne.KeyPlus, ed.zoomIn)
	bind(fyne.KeyMinus, ed.zoomOut)
	bind(fyne.Key0, ed.zoomReset)
	c.SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape && ed.doc.HandleShortcut(engine.ShortcutCancel) {
			ed.refresh()
			ed.setStatus("Cancelled")
		}
	})
}

func (ed *Editor) setStatus(text string) { ed.status.SetText(text) }

func (ed *Editor) refresh() {
	ed.view.Refresh()
	ed.scroll.Refresh()
	if ed.zoomLabel != nil {
		ed.zoomLabel.SetText(zoomText(ed.vp.Zoom()))
	}
}

func (ed *Editor) changed() {
	text := fmt.Sprintf("%d annotations", ed.doc.Len())
	if ed.doc.Dirty() {
		text += " (unsaved)"
	}
	ed.setStatus(text)
}

func (ed *Editor) undo() {
	if ed.doc.HandleShortcut(engine.ShortcutUndo) {
		ed.refresh()
		ed.changed()
	}
}

// save runs in the background and reports back on the UI goroutine. A failed
// save leaves the canvas dirty and offers a retry.
func (ed *Editor) save() {
	done := ed.doc.SaveAsync(context.Background())
	ed.setStatus("Saving...")
	go func() {
		err := <-done
		fyne.Do(func() {
			switch {
			case errors.Is(err, engine.ErrNoGateway):
				ed.setStatus("Nothing to save to")
			case err != nil:
				ed.logger.Warn("Save failed", "error", err)
				ed.setStatus("Save failed")
				dialog.ShowConfirm("Save failed", err.Error()+"\n\nTry again?", func(retry bool) {
					if retry {
						ed.save()
					}
				}, ed.win)
			default:
				ed.changed()
			}
		})
	}()
}

func (ed *Editor) zoomIn() {
	ed.vp.ZoomIn()
	ed.refresh()
}

func (ed *Editor) zoomOut() {
	ed.vp.ZoomOut()
	ed.refresh()
}

func (ed *Editor) zoomReset() {
	ed.vp.Reset()
	ed.refresh()
}

func (ed *Editor) zoomFit() {
	w, h := ed.doc.Size()
	ed.vp.Fit(ed.scroll.Size(), w, h)
	ed.refresh()
}

func (ed *Editor) promptText(at state.Point) {
	entry := widget.NewMultiLineEntry()
	entry.SetPlaceHolder("Label text")
	items := []*widget.FormItem{widget.NewFormItem("Text", entry)}
	d := dialog.NewForm(fmt.Sprintf("Text at (%.0f, %.0f)", at.X, at.Y), "Place", "Cancel", items, func(ok bool) {
		if !ok {
			ed.doc.CancelText()
			return
		}
		if err := ed.doc.PlaceText(entry.Text); err != nil {
			dialog.ShowError(err, ed.win)
		}
		ed.refresh()
		ed.changed()
	}, ed.win)
	d.Resize(fyne.NewSize(400, 220))
	d.Show()
	ed.win.Canvas().Focus(entry)
}

func (ed *Editor) close() {
	if !ed.doc.Dirty() {
		ed.doc.Close()
		ed.win.Close()
		return
	}
	dialog.ShowConfirm("Unsaved changes", "Close without saving?", func(discard bool) {
		if discard {
			ed.doc.Close()
			ed.win.Close()
		}
	}, ed.win)
}
