// Package surface holds the decoded raster a screen is annotated on.
package surface

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF decoding
	_ "image/jpeg" // register JPEG decoding
	"image/png"
	"io"
	"strings"

	_ "golang.org/x/image/webp" // register WebP decoding
)

// ErrCorrupt is returned when image data cannot be decoded.
var ErrCorrupt = errors.New("surface: corrupt image data")

// Surface is an immutable decoded image. Pixels must not be modified after Decode.
type Surface struct {
	Width  int
	Height int
	Pixels *image.RGBA
}

// FromImage copies img into a new surface anchored at the origin.
func FromImage(img image.Image) (*Surface, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrCorrupt)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrCorrupt)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Surface{Width: b.Dx(), Height: b.Dy(), Pixels: rgba}, nil
}

// Decode reads a PNG, JPEG, GIF or WebP image.
func Decode(r io.Reader) (*Surface, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	s, err := FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return s, nil
}

// DecodeBytes decodes raw image bytes or a "data:image/...;base64," URL.
func DecodeBytes(data []byte) (*Surface, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrCorrupt)
	}
	if bytes.HasPrefix(data, []byte("data:")) {
		return DecodeDataURL(string(data))
	}
	return Decode(bytes.NewReader(data))
}

// DecodeDataURL decodes the base64 data URLs produced by browser captures.
func DecodeDataURL(url string) (*Surface, error) {
	header, payload, ok := strings.Cut(url, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: unsupported data url", ErrCorrupt)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Decode(bytes.NewReader(raw))
}

// Clone returns a writable copy of the base pixels.
func (s *Surface) Clone() *image.RGBA {
	out := image.NewRGBA(s.Pixels.Rect)
	copy(out.Pix, s.Pixels.Pix)
	return out
}

// Bounds returns the pixel rectangle.
func (s *Surface) Bounds() image.Rectangle {
	return s.Pixels.Rect
}

// EncodePNG writes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Source gates access to a surface that may still be decoding.
type Source interface {
	// Ready is closed once the decode finished, successfully or not.
	Ready() <-chan struct{}
	// Result returns the decoded surface or the decode error. It must only be
	// called after Ready is closed.
	Result() (*Surface, error)
}

// Pending is a surface being decoded on a background goroutine.
type Pending struct {
	done    chan struct{}
	surface *Surface
	err     error
}

// Load starts decoding data. Cancelling ctx before the decode finishes resolves
// the pending surface with the context error.
func Load(ctx context.Context, data []byte) *Pending {
	p := &Pending{done: make(chan struct{})}
	result := make(chan struct{})
	var s *Surface
	var err error
	go func() {
		s, err = DecodeBytes(data)
		close(result)
	}()
	go func() {
		select {
		case <-result:
			p.surface, p.err = s, err
		case <-ctx.Done():
			p.err = ctx.Err()
		}
		close(p.done)
	}()
	return p
}

func (p *Pending) Ready() <-chan struct{} { return p.done }

func (p *Pending) Result() (*Surface, error) {
	<-p.done
	return p.surface, p.err
}

// Wait blocks until the decode finished or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*Surface, error) {
	select {
	case <-p.done:
		return p.surface, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type loaded struct {
	s    *Surface
	done chan struct{}
}

// Loaded wraps an already decoded surface as a ready Source.
func Loaded(s *Surface) Source {
	done := make(chan struct{})
	close(done)
	return loaded{s: s, done: done}
}

func (l loaded) Ready() <-chan struct{}    { return l.done }
func (l loaded) Result() (*Surface, error) { return l.s, nil }
