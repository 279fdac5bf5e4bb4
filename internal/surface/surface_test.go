package surface

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	data, err := EncodePNG(img)
	require.NoError(t, err)
	return data
}

func TestDecodeBytes(t *testing.T) {
	s, err := DecodeBytes(testPNG(t, 8, 6))
	require.NoError(t, err)
	assert.Equal(t, 8, s.Width)
	assert.Equal(t, 6, s.Height)
	assert.Equal(t, color.RGBA{R: 3, G: 2, B: 200, A: 255}, s.Pixels.RGBAAt(3, 2))
}

func TestDecodeDataURL(t *testing.T) {
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t, 4, 4))
	s, err := DecodeBytes([]byte(url))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Width)

	_, err = DecodeDataURL("data:text/plain;base64,aGk=")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := DecodeBytes([]byte("not an image"))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeBytes(nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCloneIsIndependent(t *testing.T) {
	s, err := DecodeBytes(testPNG(t, 2, 2))
	require.NoError(t, err)
	c := s.Clone()
	c.SetRGBA(0, 0, color.RGBA{A: 255})
	assert.NotEqual(t, c.RGBAAt(0, 0), s.Pixels.RGBAAt(0, 0))
}

func TestLoadAsync(t *testing.T) {
	p := Load(context.Background(), testPNG(t, 5, 5))
	select {
	case <-p.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("surface never became ready")
	}
	s, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, 5, s.Height)
}

func TestLoadAsyncCorrupt(t *testing.T) {
	p := Load(context.Background(), []byte{1, 2, 3})
	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoaded(t *testing.T) {
	s, err := DecodeBytes(testPNG(t, 1, 1))
	require.NoError(t, err)
	src := Loaded(s)
	<-src.Ready()
	got, err := src.Result()
	require.NoError(t, err)
	assert.Same(t, s, got)
}
