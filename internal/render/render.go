// Package render rasterizes annotations onto an RGBA image.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"screenspec/internal/state"
	"screenspec/internal/surface"
)

// ErrMalformed marks an annotation that cannot be drawn.
var ErrMalformed = errors.New("render: malformed annotation")

const (
	// PreviewOpacity is applied to the annotation being dragged.
	PreviewOpacity = 0.7
	// HighlightAlpha is the fill alpha of highlight annotations.
	HighlightAlpha = 0.3

	minArrowHead = 15.0
	textScale    = 8 // text pixel size per stroke size unit
	maxTextPx    = 256
)

var (
	fontOnce  sync.Once
	goRegular *opentype.Font
	fontErr   error
)

func loadFont() (*opentype.Font, error) {
	fontOnce.Do(func() {
		goRegular, fontErr = opentype.Parse(goregular.TTF)
	})
	return goRegular, fontErr
}

// Renderer draws annotations. Text uses the embedded Go Regular font only, so the
// output never depends on fonts installed on the host.
type Renderer struct {
	logger *slog.Logger

	mu    sync.Mutex
	faces map[int]font.Face
}

// New creates a renderer. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger, faces: make(map[int]font.Face)}
}

// Draw renders a onto dst with the given opacity in [0,1].
func (r *Renderer) Draw(dst *image.RGBA, a state.Annotation, opacity float64) error {
	if a == nil || !a.Valid() {
		return fmt.Errorf("%w: %T", ErrMalformed, a)
	}
	style := a.StyleOf()
	col, err := style.Color.NRGBA(opacity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	width := float64(style.StrokeSize)

	switch v := a.(type) {
	case state.Text:
		return r.drawText(dst, v, col)
	case state.Arrow:
		head := math.Max(minArrowHead, 5*width)
		angle := math.Atan2(v.EndY-v.StartY, v.EndX-v.StartX)
		stroke(dst, col, width, func(p rasterx.Adder) {
			segment(p, v.StartX, v.StartY, v.EndX, v.EndY)
			for _, side := range []float64{-math.Pi / 6, math.Pi / 6} {
				segment(p, v.EndX, v.EndY,
					v.EndX-head*math.Cos(angle+side),
					v.EndY-head*math.Sin(angle+side))
			}
		})
	case state.Rectangle:
		minX, minY, maxX, maxY := span(v.StartX, v.StartY, v.EndX, v.EndY)
		stroke(dst, col, width, func(p rasterx.Adder) {
			rasterx.AddRect(minX, minY, maxX, maxY, 0, p)
		})
	case state.Highlight:
		minX, minY, maxX, maxY := span(v.StartX, v.StartY, v.EndX, v.EndY)
		if minX == maxX || minY == maxY {
			return nil
		}
		fillCol, _ := style.Color.NRGBA(HighlightAlpha * opacity)
		fill(dst, fillCol, func(p rasterx.Adder) {
			rasterx.AddRect(minX, minY, maxX, maxY, 0, p)
		})
	case state.Circle:
		radius := v.Radius()
		if radius == 0 {
			return nil
		}
		stroke(dst, col, width, func(p rasterx.Adder) {
			rasterx.AddCircle(v.CenterX, v.CenterY, radius, p)
		})
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrMalformed, a)
	}
	return nil
}

// DrawAll draws list in order at full opacity. Malformed annotations are logged
// and skipped; the number skipped is returned.
func (r *Renderer) DrawAll(dst *image.RGBA, list []state.Annotation) int {
	skipped := 0
	for i, a := range list {
		if err := r.Draw(dst, a, 1); err != nil {
			skipped++
			r.logger.Warn("skipping annotation", "index", i, "error", err)
		}
	}
	return skipped
}

// Replay clears to the base surface and draws every annotation in order.
func (r *Renderer) Replay(base *surface.Surface, list []state.Annotation) *image.RGBA {
	dst := base.Clone()
	r.DrawAll(dst, list)
	return dst
}

func span(x0, y0, x1, y1 float64) (minX, minY, maxX, maxY float64) {
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

func segment(p rasterx.Adder, x0, y0, x1, y1 float64) {
	p.Start(rasterx.ToFixedP(x0, y0))
	p.Line(rasterx.ToFixedP(x1, y1))
	p.Stop(false)
}

func newDasher(dst *image.RGBA) *rasterx.Dasher {
	b := dst.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), dst, b)
	scanner.SetClip(b)
	return rasterx.NewDasher(b.Dx(), b.Dy(), scanner)
}

func stroke(dst *image.RGBA, col color.Color, width float64, build func(rasterx.Adder)) {
	d := newDasher(dst)
	d.SetStroke(fixed.Int26_6(width*64), 4<<6, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.Round, nil, 0)
	build(d)
	d.SetColor(col)
	d.Draw()
	d.Clear()
}

func fill(dst *image.RGBA, col color.Color, build func(rasterx.Adder)) {
	rf := &newDasher(dst).Filler
	rf.SetWinding(true)
	build(rf)
	rf.SetColor(col)
	rf.Draw()
	rf.Clear()
}

func (r *Renderer) face(px int) (font.Face, error) {
	if f, ok := r.faces[px]; ok {
		return f, nil
	}
	otf, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	f, err := opentype.NewFace(otf, &opentype.FaceOptions{
		Size:    float64(px),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("font face %dpx: %w", px, err)
	}
	r.faces[px] = f
	return f, nil
}

// TextSize returns the pixel size text annotations are drawn at for a stroke size.
func TextSize(strokeSize int) int {
	px := strokeSize * textScale
	if px > maxTextPx {
		px = maxTextPx
	}
	return px
}

func (r *Renderer) drawText(dst *image.RGBA, t state.Text, col color.NRGBA) error {
	if t.Text == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	face, err := r.face(TextSize(t.StrokeSize))
	if err != nil {
		return err
	}
	lineHeight := face.Metrics().Height
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
	}
	origin := rasterx.ToFixedP(t.X, t.Y)
	for i, line := range strings.Split(t.Text, "\n") {
		d.Dot = fixed.Point26_6{X: origin.X, Y: origin.Y + lineHeight*fixed.Int26_6(i)}
		d.DrawString(line)
	}
	return nil
}
