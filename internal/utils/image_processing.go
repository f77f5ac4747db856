package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// LetterboxPad is the grey value used to fill letterbox borders.
const LetterboxPad = 114

// Letterbox describes how an image was scaled and padded into a square model input.
type Letterbox struct {
	Size  int     // side of the square canvas
	Scale float64 // factor applied to the source image
	PadX  float64 // left border in canvas pixels
	PadY  float64 // top border in canvas pixels
}

// Unmap converts a box in canvas coordinates back to source image coordinates.
func (l Letterbox) Unmap(b Box) Box {
	if l.Scale <= 0 {
		return b
	}
	return Box{
		MinX: (b.MinX - l.PadX) / l.Scale,
		MinY: (b.MinY - l.PadY) / l.Scale,
		MaxX: (b.MaxX - l.PadX) / l.Scale,
		MaxY: (b.MaxY - l.PadY) / l.Scale,
	}
}

// LetterboxImage scales img to fit a size x size canvas preserving aspect ratio and
// centers it on a grey background.
func LetterboxImage(img image.Image, size int) (*image.NRGBA, Letterbox, error) {
	if img == nil {
		return nil, Letterbox{}, &ImageProcessingError{Operation: "letterbox", Err: errors.New("input image is nil")}
	}
	if size <= 0 {
		return nil, Letterbox{}, &ImageProcessingError{
			Operation: "letterbox",
			Err:       fmt.Errorf("invalid target size: %d", size),
		}
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, Letterbox{}, &ImageProcessingError{
			Operation: "letterbox",
			Err:       fmt.Errorf("invalid image dimensions: %dx%d", w, h),
		}
	}

	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	newW := max(1, int(math.Round(float64(w)*scale)))
	newH := max(1, int(math.Round(float64(h)*scale)))
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	canvas := imaging.New(size, size, color.NRGBA{R: LetterboxPad, G: LetterboxPad, B: LetterboxPad, A: 255})
	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	return canvas, Letterbox{Size: size, Scale: scale, PadX: float64(padX), PadY: float64(padY)}, nil
}

// NormalizeImage converts an image to a float32 NCHW buffer:
// RGB channel order, alpha dropped, values scaled from 0-255 to 0-1.
func NormalizeImage(img image.Image) ([]float32, int, int, error) {
	return NormalizeImageInto(img, nil)
}

// NormalizeImageInto is NormalizeImage writing into dst when it has room for
// 3*w*h values; otherwise a new buffer is allocated.
func NormalizeImageInto(img image.Image, dst []float32) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}

	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("invalid image dimensions")}
	}

	plane := width * height
	tensor := dst
	if cap(tensor) < 3*plane {
		tensor = make([]float32, 3*plane)
	}
	tensor = tensor[:3*plane]
	for y := range height {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range width {
			idx := y*width + x
			tensor[idx] = float32(row[x*4]) / 255.0
			tensor[plane+idx] = float32(row[x*4+1]) / 255.0
			tensor[2*plane+idx] = float32(row[x*4+2]) / 255.0
		}
	}

	return tensor, width, height, nil
}
