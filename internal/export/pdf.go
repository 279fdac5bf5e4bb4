package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"screenspec/internal/state"
	"screenspec/internal/storage"
)

const (
	pageW    = 210.0
	pageH    = 297.0
	margin   = 20.0
	bottom   = pageH - 25
	contentW = pageW - 2*margin

	// pdfImageMaxPx bounds embedded images; at 0.1 mm per pixel the widest
	// image still fits the content width.
	pdfImageMaxPx = 1700
	mmPerPx       = 0.1
)

// PDF writes an A4 specification document: a cover, a table of contents
// and one detail page per screen.
type PDF struct {
	Logger   *slog.Logger
	Compress bool
}

func (e *PDF) Ext() string { return ".pdf" }

type pdfDoc struct {
	*gofpdf.Fpdf
	tr      func(string) string
	c       Collection
	accent  [3]int
	links   []int
	current *storage.Screen
}

func (e *PDF) Render(ctx context.Context, w io.Writer, c Collection) error {
	if err := c.validate(); err != nil {
		return err
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	images, err := prepareImages(ctx, c.Screens, pdfImageMaxPx)
	if err != nil {
		return fmt.Errorf("prepare images: %w", err)
	}

	p := gofpdf.New("P", "mm", "A4", "")
	p.SetCompression(e.Compress)
	p.SetMargins(margin, margin, margin)
	p.SetAutoPageBreak(false, margin)
	p.SetCreationDate(c.generated())
	p.SetTitle("UI Specification - "+c.Project.Name, true)
	p.SetCreator("screenspec", false)
	if c.Author != "" {
		p.SetAuthor(c.Author, true)
	}

	d := &pdfDoc{Fpdf: p, tr: p.UnicodeTranslatorFromDescriptor(""), c: c, accent: rgb(c.Project.Color)}
	p.SetFooterFunc(d.footer)
	d.cover()
	d.contents()
	for i, s := range c.Screens {
		if err := ctx.Err(); err != nil {
			return err
		}
		if images[i].Err != nil {
			logger.Warn("Screen image unreadable", "screen", s.ID, "err", images[i].Err)
		}
		d.screen(i, s, images[i])
	}
	if err := p.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	logger.Info("PDF exported", "project", c.Project.ID, "screens", len(c.Screens), "pages", p.PageCount())
	return p.Output(w)
}

func (d *pdfDoc) cover() {
	d.AddPage()
	d.SetFillColor(240, 240, 240)
	d.Rect(0, 0, pageW, pageH, "F")
	d.SetFillColor(d.accent[0], d.accent[1], d.accent[2])
	d.Rect(0, 0, pageW, 12, "F")
	d.Rect(0, pageH-12, pageW, 12, "F")

	d.SetTextColor(30, 41, 59)
	d.SetFont("Helvetica", "B", 32)
	d.SetXY(margin, 80)
	d.CellFormat(contentW, 14, "UI Specification", "", 1, "C", false, 0, "")
	d.SetFont("Helvetica", "", 20)
	d.SetTextColor(d.accent[0], d.accent[1], d.accent[2])
	d.CellFormat(contentW, 12, d.tr(d.c.Project.Name), "", 1, "C", false, 0, "")
	if desc := d.c.Project.Description; desc != "" {
		d.SetFont("Helvetica", "I", 12)
		d.SetTextColor(100, 116, 139)
		d.Ln(4)
		d.MultiCell(contentW, 6, d.tr(desc), "", "C", false)
	}

	rows := [][2]string{
		{"Screens", fmt.Sprint(len(d.c.Screens))},
		{"Generated", d.c.generated().Format("02.01.2006 15:04")},
	}
	if d.c.Author != "" {
		rows = append(rows, [2]string{"Author", d.c.Author})
	}
	boxW, boxX, boxY := 110.0, (pageW-110)/2, 170.0
	d.SetFillColor(255, 255, 255)
	d.SetDrawColor(203, 213, 225)
	d.SetLineWidth(0.3)
	d.Rect(boxX, boxY, boxW, float64(len(rows))*9+10, "FD")
	d.SetXY(boxX+8, boxY+5)
	for _, r := range rows {
		d.SetX(boxX + 8)
		d.SetFont("Helvetica", "B", 11)
		d.SetTextColor(71, 85, 105)
		d.CellFormat(35, 9, r[0], "", 0, "L", false, 0, "")
		d.SetFont("Helvetica", "", 11)
		d.SetTextColor(30, 41, 59)
		d.CellFormat(boxW-51, 9, d.tr(r[1]), "", 1, "L", false, 0, "")
	}
}

func pageAlias(i int) string { return fmt.Sprintf("{pg%d}", i) }

func (d *pdfDoc) contents() {
	d.AddPage()
	d.SetTextColor(30, 41, 59)
	d.SetFont("Helvetica", "B", 22)
	d.SetXY(margin, margin)
	d.CellFormat(contentW, 12, "Contents", "", 1, "L", false, 0, "")
	d.SetDrawColor(d.accent[0], d.accent[1], d.accent[2])
	d.SetLineWidth(0.8)
	d.Line(margin, d.GetY()+1, pageW-margin, d.GetY()+1)
	d.Ln(8)

	d.links = make([]int, len(d.c.Screens))
	for i, s := range d.c.Screens {
		if d.GetY() > bottom-14 {
			d.AddPage()
			d.SetY(margin)
		}
		link := d.AddLink()
		d.links[i] = link
		title := d.tr(fmt.Sprintf("%d. %s", i+1, ScreenTitle(s, i+1)))

		d.SetFont("Helvetica", "", 12)
		d.SetTextColor(30, 41, 59)
		numW := 14.0
		titleW := math.Min(d.GetStringWidth(title)+2, contentW-numW-10)
		d.CellFormat(titleW, 8, title, "", 0, "L", false, link, "")
		dotW := d.GetStringWidth(".")
		if n := int((contentW - titleW - numW) / dotW); n > 0 {
			d.SetTextColor(148, 163, 184)
			d.CellFormat(contentW-titleW-numW, 8, strings.Repeat(".", n), "", 0, "R", false, link, "")
		}
		d.SetTextColor(30, 41, 59)
		d.CellFormat(numW, 8, pageAlias(i), "", 1, "R", false, link, "")

		if desc := s.Metadata.Description; desc != "" {
			d.SetFont("Helvetica", "I", 9)
			d.SetTextColor(100, 116, 139)
			d.SetX(margin + 6)
			d.CellFormat(contentW-6, 5, d.tr(truncate(desc, 60)), "", 1, "L", false, 0, "")
		}
		d.Ln(2)
	}
}

func (d *pdfDoc) screen(i int, s *storage.Screen, img screenImage) {
	d.AddPage()
	d.current = s
	d.SetLink(d.links[i], 0, -1)
	d.RegisterAlias(pageAlias(i), fmt.Sprint(d.PageNo()))

	d.SetXY(margin, margin)
	d.SetFont("Helvetica", "B", 18)
	d.SetTextColor(30, 41, 59)
	d.CellFormat(contentW, 10, d.tr(ScreenTitle(s, i+1)), "", 1, "L", false, 0, "")
	d.SetDrawColor(d.accent[0], d.accent[1], d.accent[2])
	d.SetLineWidth(0.8)
	d.Line(margin, d.GetY()+1, pageW-margin, d.GetY()+1)
	d.Ln(6)

	d.infoTable(s.Metadata)
	d.Ln(6)
	d.image(i, img)
	d.Ln(6)
	d.annotations(s.Annotations)
}

func (d *pdfDoc) infoTable(m storage.Metadata) {
	rows := [][2]string{
		{"Function", m.FunctionName},
		{"Author", m.Author},
		{"Tags", strings.Join(m.Tags, ", ")},
		{"Description", m.Description},
	}
	const labelW = 35.0
	d.SetDrawColor(226, 232, 240)
	d.SetLineWidth(0.2)
	for _, r := range rows {
		value := r[1]
		if value == "" {
			value = "-"
		}
		value = d.tr(value)
		d.SetFont("Helvetica", "", 10)
		lines := d.SplitLines([]byte(value), contentW-labelW-4)
		h := math.Max(1, float64(len(lines))) * 6
		y := d.GetY()

		d.SetFillColor(241, 245, 249)
		d.SetFont("Helvetica", "B", 10)
		d.SetTextColor(71, 85, 105)
		d.CellFormat(labelW, h, r[0], "1", 0, "L", true, 0, "")
		d.SetFont("Helvetica", "", 10)
		d.SetTextColor(30, 41, 59)
		d.MultiCell(contentW-labelW, 6, value, "1", "L", false)
		d.SetXY(margin, y+h)
	}
}

func (d *pdfDoc) image(i int, img screenImage) {
	if img.Err != nil || img.Width == 0 {
		y := d.GetY()
		d.SetFillColor(241, 245, 249)
		d.Rect(margin, y, contentW, 40, "F")
		d.SetFont("Helvetica", "I", 11)
		d.SetTextColor(148, 163, 184)
		d.SetXY(margin, y)
		d.CellFormat(contentW, 40, "Image unavailable", "", 1, "C", false, 0, "")
		return
	}
	w := math.Min(contentW, float64(img.Width)*mmPerPx)
	h := w * float64(img.Height) / float64(img.Width)
	if d.GetY()+h > bottom {
		if bottom-d.GetY() < 80 {
			d.AddPage()
			d.SetY(margin)
		}
		if avail := bottom - d.GetY(); h > avail {
			w, h = w*avail/h, avail
		}
	}
	name := fmt.Sprintf("screen-%d", i)
	d.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(img.PNG))
	x, y := (pageW-w)/2, d.GetY()
	d.ImageOptions(name, x, y, w, h, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	d.SetDrawColor(203, 213, 225)
	d.SetLineWidth(0.2)
	d.Rect(x, y, w, h, "D")
	d.SetY(y + h)
}

func (d *pdfDoc) annotations(list state.List) {
	if len(list) == 0 {
		return
	}
	d.heading(fmt.Sprintf("Annotations (%d)", len(list)))
	for _, a := range list {
		if d.GetY() > bottom-7 {
			d.AddPage()
			d.SetY(margin)
			d.heading("Annotations (continued)")
		}
		c := rgb(string(a.StyleOf().Color))
		y := d.GetY()
		d.SetFillColor(c[0], c[1], c[2])
		d.Circle(margin+2, y+3.5, 1.6, "F")
		d.SetX(margin + 6)
		d.SetFont("Helvetica", "", 10)
		d.SetTextColor(30, 41, 59)
		d.CellFormat(contentW-6, 7, d.tr(Describe(a)), "", 1, "L", false, 0, "")
	}
}

func (d *pdfDoc) heading(text string) {
	d.SetFont("Helvetica", "B", 13)
	d.SetTextColor(30, 41, 59)
	d.CellFormat(contentW, 9, text, "", 1, "L", false, 0, "")
}

func (d *pdfDoc) footer() {
	if d.PageNo() == 1 {
		return
	}
	d.SetY(-15)
	d.SetFont("Helvetica", "", 8)
	d.SetTextColor(148, 163, 184)
	third := contentW / 3
	d.CellFormat(third, 6, d.c.generated().Format("02.01.2006"), "", 0, "L", false, 0, "")
	url := ""
	if d.current != nil {
		url = truncate(d.current.URL, 50)
	}
	d.CellFormat(third, 6, d.tr(url), "", 0, "C", false, 0, "")
	d.CellFormat(third, 6, fmt.Sprintf("Page %d", d.PageNo()), "", 0, "R", false, 0, "")
}

// rgb parses a "#rrggbb" color, falling back to slate gray.
func rgb(hex string) [3]int {
	c, err := state.Color(hex).NRGBA(1)
	if err != nil {
		return [3]int{100, 116, 139}
	}
	return [3]int{int(c.R), int(c.G), int(c.B)}
}
