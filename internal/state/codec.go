package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// wireAnnotation is the stored JSON form. It also accepts documents written by the
// browser extension, which used "rect", "timestamp" and startX/startY for circles.
type wireAnnotation struct {
	Type       string   `json:"type"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	Text       string   `json:"text,omitempty"`
	StartX     *float64 `json:"startX,omitempty"`
	StartY     *float64 `json:"startY,omitempty"`
	CenterX    *float64 `json:"centerX,omitempty"`
	CenterY    *float64 `json:"centerY,omitempty"`
	EndX       *float64 `json:"endX,omitempty"`
	EndY       *float64 `json:"endY,omitempty"`
	Color      string   `json:"color"`
	StrokeSize int      `json:"strokeSize,omitempty"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
}

func ptr(v float64) *float64 { return &v }

func val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// EncodeAnnotation converts a to its stored form.
func EncodeAnnotation(a Annotation) ([]byte, error) {
	var w wireAnnotation
	switch v := a.(type) {
	case Text:
		w = wireAnnotation{Type: "text", X: ptr(v.X), Y: ptr(v.Y), Text: v.Text}
	case Arrow:
		w = wireAnnotation{Type: "arrow", StartX: ptr(v.StartX), StartY: ptr(v.StartY), EndX: ptr(v.EndX), EndY: ptr(v.EndY)}
	case Rectangle:
		w = wireAnnotation{Type: "rect", StartX: ptr(v.StartX), StartY: ptr(v.StartY), EndX: ptr(v.EndX), EndY: ptr(v.EndY)}
	case Highlight:
		w = wireAnnotation{Type: "highlight", StartX: ptr(v.StartX), StartY: ptr(v.StartY), EndX: ptr(v.EndX), EndY: ptr(v.EndY)}
	case Circle:
		w = wireAnnotation{Type: "circle", CenterX: ptr(v.CenterX), CenterY: ptr(v.CenterY), EndX: ptr(v.EndX), EndY: ptr(v.EndY)}
	default:
		return nil, fmt.Errorf("encode annotation: unsupported type %T", a)
	}
	style := a.StyleOf()
	w.Color = string(style.Color)
	w.StrokeSize = style.StrokeSize
	w.CreatedAt = stamp(a.Created())
	return json.Marshal(w)
}

// DecodeAnnotation parses one stored annotation.
func DecodeAnnotation(data []byte) (Annotation, error) {
	var w wireAnnotation
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode annotation: %w", err)
	}
	tool, err := ParseTool(w.Type)
	if err != nil {
		return nil, fmt.Errorf("decode annotation: %w", err)
	}

	col := Color(w.Color)
	if c, err := ParseColor(w.Color); err == nil {
		col = c
	}
	size := w.StrokeSize
	if size == 0 {
		size = DefaultStrokeSize
	}
	created := w.CreatedAt
	if created == "" {
		created = w.Timestamp
	}
	var at time.Time
	if created != "" {
		if at, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode annotation: created time: %w", err)
		}
	}

	switch tool {
	case ToolText:
		return Text{X: val(w.X), Y: val(w.Y), Text: w.Text, Color: col, StrokeSize: size, CreatedAt: at}, nil
	case ToolCircle:
		cx, cy := w.CenterX, w.CenterY
		if cx == nil && cy == nil {
			cx, cy = w.StartX, w.StartY
		}
		return Circle{val(cx), val(cy), val(w.EndX), val(w.EndY), col, size, at}, nil
	}
	return NewShape(tool, Point{val(w.StartX), val(w.StartY)}, Point{val(w.EndX), val(w.EndY)}, Style{col, size}, at), nil
}

// MarshalAnnotations encodes an ordered annotation list as a JSON array.
func MarshalAnnotations(list []Annotation) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(list))
	for i, a := range list {
		data, err := EncodeAnnotation(a)
		if err != nil {
			return nil, fmt.Errorf("annotation %d: %w", i, err)
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}

// UnmarshalAnnotations decodes a JSON array written by MarshalAnnotations.
// A null or empty document yields an empty list. Entries that do not decode
// are logged and dropped; only a document that is not an array is an error.
func UnmarshalAnnotations(data []byte) ([]Annotation, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	out := make([]Annotation, 0, len(raw))
	for i, r := range raw {
		a, err := DecodeAnnotation(r)
		if err != nil {
			slog.Warn("state: skipping malformed annotation", "index", i, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// List is an ordered annotation slice that round-trips through JSON.
type List []Annotation

func (l List) MarshalJSON() ([]byte, error) { return MarshalAnnotations(l) }

func (l *List) UnmarshalJSON(data []byte) error {
	list, err := UnmarshalAnnotations(data)
	if err != nil {
		return err
	}
	*l = list
	return nil
}
