package utils

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func TestLetterboxImageWide(t *testing.T) {
	img := solidRGBA(200, 100, color.RGBA{R: 255, A: 255})
	out, lb, err := LetterboxImage(img, 64)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 64, 64), out.Bounds())
	assert.InDelta(t, 0.32, lb.Scale, 1e-9)
	assert.InDelta(t, 0, lb.PadX, 1e-9)
	assert.InDelta(t, 16, lb.PadY, 1e-9)

	// Border is grey padding, center is the scaled image.
	assert.Equal(t, color.NRGBA{R: LetterboxPad, G: LetterboxPad, B: LetterboxPad, A: 255}, out.NRGBAAt(32, 2))
	assert.Equal(t, uint8(255), out.NRGBAAt(32, 32).R)
}

func TestLetterboxImageErrors(t *testing.T) {
	_, _, err := LetterboxImage(nil, 64)
	require.Error(t, err)

	_, _, err = LetterboxImage(solidRGBA(4, 4, color.Black), 0)
	require.Error(t, err)

	_, _, err = LetterboxImage(image.NewRGBA(image.Rect(0, 0, 0, 0)), 64)
	require.Error(t, err)
}

func TestNormalizeImageLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(1, 0, color.RGBA{R: 0, G: 51, B: 255, A: 255})

	data, w, h, err := NormalizeImage(img)
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	require.Len(t, data, 6)

	assert.InDelta(t, 1.0, data[0], 1e-6) // R plane
	assert.InDelta(t, 0.0, data[1], 1e-6)
	assert.InDelta(t, 0.0, data[2], 1e-6) // G plane
	assert.InDelta(t, 0.2, data[3], 1e-6)
	assert.InDelta(t, 0.0, data[4], 1e-6) // B plane
	assert.InDelta(t, 1.0, data[5], 1e-6)
}

func TestNormalizeImageInto(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	dst := make([]float32, 16)
	data, _, _, err := NormalizeImageInto(img, dst)
	require.NoError(t, err)
	require.Len(t, data, 12)
	assert.Same(t, &dst[0], &data[0], "buffer reused")
	assert.InDelta(t, 1.0, data[3], 1e-6)

	small := make([]float32, 2)
	data, _, _, err = NormalizeImageInto(img, small)
	require.NoError(t, err)
	assert.Len(t, data, 12)
}

func TestNormalizeImageNil(t *testing.T) {
	_, _, _, err := NormalizeImage(nil)
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "normalize", ipe.Operation)
}

// TestLetterboxUnmap_Property checks that a box placed in source coordinates and
// pushed through the letterbox transform comes back unchanged.
func TestLetterboxUnmap_Property(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("unmap inverts the letterbox transform", prop.ForAll(
		func(w, h, x, y int) bool {
			img := image.NewRGBA(image.Rect(0, 0, w, h))
			_, lb, err := LetterboxImage(img, 64)
			if err != nil {
				return false
			}
			src := NewBox(float64(x%w), float64(y%h), float64(x%w+1), float64(y%h+1))
			canvas := Box{
				MinX: src.MinX*lb.Scale + lb.PadX,
				MinY: src.MinY*lb.Scale + lb.PadY,
				MaxX: src.MaxX*lb.Scale + lb.PadX,
				MaxY: src.MaxY*lb.Scale + lb.PadY,
			}
			back := lb.Unmap(canvas)
			const eps = 1e-6
			return abs(back.MinX-src.MinX) < eps && abs(back.MinY-src.MinY) < eps &&
				abs(back.MaxX-src.MaxX) < eps && abs(back.MaxY-src.MaxY) < eps
		},
		gen.IntRange(1, 300),
		gen.IntRange(1, 300),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.Property("scaled image always fits the canvas", prop.ForAll(
		func(w, h int) bool {
			_, lb, err := LetterboxImage(image.NewRGBA(image.Rect(0, 0, w, h)), 64)
			if err != nil {
				return false
			}
			return lb.PadX >= 0 && lb.PadY >= 0 &&
				float64(w)*lb.Scale <= 64.0+1e-9 && float64(h)*lb.Scale <= 64.0+1e-9
		},
		gen.IntRange(1, 400),
		gen.IntRange(1, 400),
	))

	properties.TestingRun(t)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
