package state

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidGeometry is returned when an annotation carries NaN or infinite coordinates.
var ErrInvalidGeometry = errors.New("state: annotation geometry is not finite")

// DefaultStrokeSize is used when persisted data carries no stroke size.
const DefaultStrokeSize = 2

// Point is a position in the image's native pixel space.
type Point struct{ X, Y float64 }

// Finite reports whether both coordinates are real numbers.
func (p Point) Finite() bool { return finite(p.X, p.Y) }

// Tool identifies which kind of annotation the next gesture produces.
type Tool int

const (
	ToolText Tool = iota
	ToolArrow
	ToolRectangle
	ToolHighlight
	ToolCircle
)

var toolNames = map[Tool]string{
	ToolText:      "text",
	ToolArrow:     "arrow",
	ToolRectangle: "rect",
	ToolHighlight: "highlight",
	ToolCircle:    "circle",
}

func (t Tool) String() string {
	if name, ok := toolNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tool(%d)", int(t))
}

// Tools lists every tool in toolbar order.
func Tools() []Tool {
	return []Tool{ToolText, ToolArrow, ToolRectangle, ToolHighlight, ToolCircle}
}

// ParseTool accepts the names used by the stored documents and the CLI.
func ParseTool(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return ToolText, nil
	case "arrow":
		return ToolArrow, nil
	case "rect", "rectangle":
		return ToolRectangle, nil
	case "highlight":
		return ToolHighlight, nil
	case "circle":
		return ToolCircle, nil
	}
	return 0, fmt.Errorf("unknown tool %q", s)
}

// Color is a normalized "#rrggbb" string.
type Color string

// ParseColor accepts "#rgb", "#rrggbb" and the same forms without the leading '#'.
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return "", fmt.Errorf("invalid color %q", s)
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return "", fmt.Errorf("invalid color %q", s)
	}
	return Color("#" + hex), nil
}

// MustColor is ParseColor for constants.
func MustColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// NRGBA converts the color with the given alpha in [0,1].
func (c Color) NRGBA(alpha float64) (color.NRGBA, error) {
	norm, err := ParseColor(string(c))
	if err != nil {
		return color.NRGBA{}, err
	}
	v, _ := strconv.ParseUint(string(norm[1:]), 16, 32)
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: uint8(math.Round(alpha * 255)),
	}, nil
}

// Style is the color and stroke size captured on an annotation when it is created.
type Style struct {
	Color      Color
	StrokeSize int
}

func (s Style) valid() bool {
	if s.StrokeSize <= 0 {
		return false
	}
	_, err := ParseColor(string(s.Color))
	return err == nil
}

// Annotation is one immutable vector shape or text label drawn over a screen.
// The set of implementations is closed: Text, Arrow, Rectangle, Highlight and Circle.
type Annotation interface {
	Kind() Tool
	StyleOf() Style
	Created() time.Time
	// Finite reports whether every coordinate is a finite number.
	Finite() bool
	// Valid additionally checks the style fields.
	Valid() bool

	annotation()
}

// Text is a label whose baseline starts at (X, Y).
type Text struct {
	X, Y       float64
	Text       string
	Color      Color
	StrokeSize int
	CreatedAt  time.Time
}

// Arrow points from the start to the end point.
type Arrow struct {
	StartX, StartY float64
	EndX, EndY     float64
	Color          Color
	StrokeSize     int
	CreatedAt      time.Time
}

// Rectangle is an outline spanning start and end.
type Rectangle struct {
	StartX, StartY float64
	EndX, EndY     float64
	Color          Color
	StrokeSize     int
	CreatedAt      time.Time
}

// Highlight is a translucent filled rectangle spanning start and end.
type Highlight struct {
	StartX, StartY float64
	EndX, EndY     float64
	Color          Color
	StrokeSize     int
	CreatedAt      time.Time
}

// Circle is an outline around the center passing through the end point.
type Circle struct {
	CenterX, CenterY float64
	EndX, EndY       float64
	Color            Color
	StrokeSize       int
	CreatedAt        time.Time
}

// Radius is the distance from the center to the end point.
func (c Circle) Radius() float64 {
	return math.Hypot(c.EndX-c.CenterX, c.EndY-c.CenterY)
}

func (Text) annotation()      {}
func (Arrow) annotation()     {}
func (Rectangle) annotation() {}
func (Highlight) annotation() {}
func (Circle) annotation()    {}

func (Text) Kind() Tool      { return ToolText }
func (Arrow) Kind() Tool     { return ToolArrow }
func (Rectangle) Kind() Tool { return ToolRectangle }
func (Highlight) Kind() Tool { return ToolHighlight }
func (Circle) Kind() Tool    { return ToolCircle }

func (a Text) StyleOf() Style      { return Style{a.Color, a.StrokeSize} }
func (a Arrow) StyleOf() Style     { return Style{a.Color, a.StrokeSize} }
func (a Rectangle) StyleOf() Style { return Style{a.Color, a.StrokeSize} }
func (a Highlight) StyleOf() Style { return Style{a.Color, a.StrokeSize} }
func (a Circle) StyleOf() Style    { return Style{a.Color, a.StrokeSize} }

func (a Text) Created() time.Time      { return a.CreatedAt }
func (a Arrow) Created() time.Time     { return a.CreatedAt }
func (a Rectangle) Created() time.Time { return a.CreatedAt }
func (a Highlight) Created() time.Time { return a.CreatedAt }
func (a Circle) Created() time.Time    { return a.CreatedAt }

func (a Text) Finite() bool      { return finite(a.X, a.Y) }
func (a Arrow) Finite() bool     { return finite(a.StartX, a.StartY, a.EndX, a.EndY) }
func (a Rectangle) Finite() bool { return finite(a.StartX, a.StartY, a.EndX, a.EndY) }
func (a Highlight) Finite() bool { return finite(a.StartX, a.StartY, a.EndX, a.EndY) }
func (a Circle) Finite() bool    { return finite(a.CenterX, a.CenterY, a.EndX, a.EndY) }

func (a Text) Valid() bool      { return a.Finite() && a.StyleOf().valid() }
func (a Arrow) Valid() bool     { return a.Finite() && a.StyleOf().valid() }
func (a Rectangle) Valid() bool { return a.Finite() && a.StyleOf().valid() }
func (a Highlight) Valid() bool { return a.Finite() && a.StyleOf().valid() }
func (a Circle) Valid() bool    { return a.Finite() && a.StyleOf().valid() }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NewShape builds the drag-shaped annotation for tool spanning from anchor to end.
// It returns nil for ToolText, which is placed by a click instead of a drag.
func NewShape(tool Tool, anchor, end Point, style Style, at time.Time) Annotation {
	switch tool {
	case ToolArrow:
		return Arrow{anchor.X, anchor.Y, end.X, end.Y, style.Color, style.StrokeSize, at}
	case ToolRectangle:
		return Rectangle{anchor.X, anchor.Y, end.X, end.Y, style.Color, style.StrokeSize, at}
	case ToolHighlight:
		return Highlight{anchor.X, anchor.Y, end.X, end.Y, style.Color, style.StrokeSize, at}
	case ToolCircle:
		return Circle{anchor.X, anchor.Y, end.X, end.Y, style.Color, style.StrokeSize, at}
	}
	return nil
}
