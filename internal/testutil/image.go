package testutil

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PlateSpec places one synthetic plate in a scene.
type PlateSpec struct {
	Text string
	Rect image.Rectangle
}

// SceneConfig describes a synthetic road scene.
type SceneConfig struct {
	Width      int
	Height     int
	Background color.Color
	Plates     []PlateSpec
	Rotation   float64 // degrees, counter-clockwise
}

// DefaultSceneConfig returns a 320x240 scene with one centered plate.
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{
		Width:      320,
		Height:     240,
		Background: color.RGBA{R: 90, G: 90, B: 96, A: 255},
		Plates: []PlateSpec{
			{Text: "AB 1234", Rect: image.Rect(110, 150, 210, 175)},
		},
	}
}

// GenerateScene draws white plates with a black border and black text onto a
// flat background.
func GenerateScene(cfg SceneConfig) (*image.RGBA, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("scene size must be positive")
	}
	bg := cfg.Background
	if bg == nil {
		bg = color.Gray{Y: 96}
	}

	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	for _, p := range cfg.Plates {
		drawPlate(img, p)
	}

	if cfg.Rotation != 0 {
		rotated := imaging.Rotate(img, cfg.Rotation, bg)
		rgba := image.NewRGBA(rotated.Bounds())
		draw.Draw(rgba, rgba.Bounds(), rotated, rotated.Bounds().Min, draw.Src)
		return rgba, nil
	}
	return img, nil
}

func drawPlate(img *image.RGBA, p PlateSpec) {
	r := p.Rect.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(img, r, image.Black, image.Point{}, draw.Src)
	draw.Draw(img, r.Inset(1), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	w := font.MeasureString(face, p.Text).Ceil()
	h := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(r.Min.X+(r.Dx()-w)/2, r.Min.Y+(r.Dy()+h)/2),
	}
	d.DrawString(p.Text)
}

// GenerateFrames returns n scenes in which every plate moves by step pixels per frame.
func GenerateFrames(cfg SceneConfig, n int, step image.Point) ([]*image.RGBA, error) {
	frames := make([]*image.RGBA, 0, n)
	for i := range n {
		c := cfg
		c.Plates = make([]PlateSpec, len(cfg.Plates))
		for j, p := range cfg.Plates {
			c.Plates[j] = PlateSpec{Text: p.Text, Rect: p.Rect.Add(step.Mul(i))}
		}
		img, err := GenerateScene(c)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// WriteScenePNG generates a scene and writes it to path, creating parent directories.
func WriteScenePNG(path string, cfg SceneConfig) error {
	img, err := GenerateScene(cfg)
	if err != nil {
		return err
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// SaveImage saves an image as PNG to the specified path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, img))
}

// CompareImages reports whether two images match within tolerance, the mean
// absolute channel difference in [0,1].
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b1, b2 := img1.Bounds(), img2.Bounds()
	if b1.Dx() != b2.Dx() || b1.Dy() != b2.Dy() {
		return false
	}

	var diff float64
	for y := range b1.Dy() {
		for x := range b1.Dx() {
			r1, g1, bl1, _ := img1.At(b1.Min.X+x, b1.Min.Y+y).RGBA()
			r2, g2, bl2, _ := img2.At(b2.Min.X+x, b2.Min.Y+y).RGBA()
			diff += math.Abs(float64(r1)-float64(r2)) +
				math.Abs(float64(g1)-float64(g2)) +
				math.Abs(float64(bl1)-float64(bl2))
		}
	}
	pixels := float64(b1.Dx() * b1.Dy() * 3)
	if pixels == 0 {
		return true
	}
	return diff/pixels/0xffff <= tolerance
}
