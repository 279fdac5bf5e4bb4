// Package export renders a project's annotated screens into a shareable
// document. Exporters only read the flattened images and list annotations as
// text; they never draw them.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"screenspec/internal/state"
	"screenspec/internal/storage"
)

// ErrEmpty is returned when a collection has no screens.
var ErrEmpty = errors.New("export: project has no screens")

// Collection is the input of an export.
type Collection struct {
	Project     storage.Project
	Screens     []*storage.Screen
	Author      string
	GeneratedAt time.Time
}

// Exporter writes a document for a collection.
type Exporter interface {
	Render(ctx context.Context, w io.Writer, c Collection) error
	// Ext is the file extension including the dot.
	Ext() string
}

// New returns the exporter for format ("pdf" or "html").
func New(format string, logger *slog.Logger) (Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch format {
	case "pdf", "":
		return &PDF{Logger: logger, Compress: true}, nil
	case "html":
		return &HTML{Logger: logger}, nil
	}
	return nil, fmt.Errorf("export: unknown format %q", format)
}

func (c Collection) validate() error {
	if len(c.Screens) == 0 {
		return ErrEmpty
	}
	return nil
}

func (c Collection) generated() time.Time {
	if c.GeneratedAt.IsZero() {
		return time.Now()
	}
	return c.GeneratedAt
}

// ScreenTitle is the heading used for the i-th (1-based) screen.
func ScreenTitle(s *storage.Screen, i int) string {
	switch {
	case s.Metadata.Title != "":
		return s.Metadata.Title
	case s.Title != "":
		return s.Title
	}
	return fmt.Sprintf("Screen %d", i)
}

// Describe summarizes an annotation in one line.
func Describe(a state.Annotation) string {
	var text string
	switch v := a.(type) {
	case state.Text:
		text = fmt.Sprintf("Text: %q", v.Text)
	case state.Arrow:
		text = fmt.Sprintf("Arrow (%.0f, %.0f) -> (%.0f, %.0f)", v.StartX, v.StartY, v.EndX, v.EndY)
	case state.Rectangle:
		text = fmt.Sprintf("Frame - width: %.0fpx, height: %.0fpx", math.Abs(v.EndX-v.StartX), math.Abs(v.EndY-v.StartY))
	case state.Highlight:
		text = fmt.Sprintf("Highlight - area: %.0f x %.0fpx", math.Abs(v.EndX-v.StartX), math.Abs(v.EndY-v.StartY))
	case state.Circle:
		text = fmt.Sprintf("Circle - radius: %.0fpx", v.Radius())
	default:
		return "Unknown annotation"
	}
	return fmt.Sprintf("%s (color: %s)", text, a.StyleOf().Color)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
