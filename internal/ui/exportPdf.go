package ui

import (
	"context"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"screenspec/internal/storage"
)

func (ed *Editor) showExport() {
	d := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, ed.win)
			return
		}
		if w == nil {
			return
		}
		ed.setStatus("Exporting...")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			err := ed.opts.Export(ctx, w)
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			fyne.Do(func() {
				if err != nil {
					ed.logger.Warn("Export failed", "error", err)
					ed.setStatus("Export failed")
					dialog.ShowError(err, ed.win)
					return
				}
				ed.setStatus("Exported " + w.URI().Name())
			})
		}()
	}, ed.win)
	name := strings.ReplaceAll(strings.ToLower(ed.opts.Title), " ", "-")
	d.SetFileName(name + ed.opts.ExportExt)
	d.Show()
}

func (ed *Editor) showMetadata() {
	m := ed.doc.Metadata()
	title := widget.NewEntry()
	title.SetText(m.Title)
	function := widget.NewEntry()
	function.SetText(m.FunctionName)
	author := widget.NewEntry()
	author.SetText(m.Author)
	tags := widget.NewEntry()
	tags.SetText(strings.Join(m.Tags, ", "))
	tags.SetPlaceHolder("login, auth")
	desc := widget.NewMultiLineEntry()
	desc.SetText(m.Description)

	items := []*widget.FormItem{
		widget.NewFormItem("Title", title),
		widget.NewFormItem("Function", function),
		widget.NewFormItem("Author", author),
		widget.NewFormItem("Tags", tags),
		widget.NewFormItem("Description", desc),
	}
	d := dialog.NewForm("Screen details", "Apply", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		ed.doc.SetMetadata(storage.Metadata{
			Title:        strings.TrimSpace(title.Text),
			FunctionName: strings.TrimSpace(function.Text),
			Author:       strings.TrimSpace(author.Text),
			Tags:         storage.ParseTags(tags.Text),
			Description:  strings.TrimSpace(desc.Text),
		})
		ed.changed()
	}, ed.win)
	d.Resize(fyne.NewSize(480, 420))
	d.Show()
}
