package export

import (
	"context"
	"image"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"screenspec/internal/storage"
	"screenspec/internal/surface"
)

// screenImage is a screen's flattened image re-encoded as PNG, or the reason
// it could not be.
type screenImage struct {
	PNG    []byte
	Width  int
	Height int
	Err    error
}

// prepareImages decodes every screen image concurrently. Images wider than
// maxWidth are scaled down. A screen whose image is unreadable gets an Err
// instead of failing the export.
func prepareImages(ctx context.Context, screens []*storage.Screen, maxWidth int) ([]screenImage, error) {
	out := make([]screenImage, len(screens))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range screens {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = prepareImage(s.ImageData, maxWidth)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func prepareImage(data []byte, maxWidth int) screenImage {
	s, err := surface.DecodeBytes(data)
	if err != nil {
		return screenImage{Err: err}
	}
	var img image.Image = s.Pixels
	w, h := s.Width, s.Height
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), s.Pixels, s.Pixels.Bounds(), draw.Src, nil)
		img = dst
	}
	png, err := surface.EncodePNG(img)
	if err != nil {
		return screenImage{Err: err}
	}
	return screenImage{PNG: png, Width: w, Height: h}
}
