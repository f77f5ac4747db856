// Package annotate turns plate detections into recognized, drawn results.
package annotate

import (
	"errors"
	"image"

	"github.com/MeKo-Tech/platescan/internal/detector"
	"github.com/MeKo-Tech/platescan/internal/utils"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// PlateDetector locates plates in an image.
type PlateDetector interface {
	Detect(img image.Image) ([]detector.Detection, error)
}

// TextRecognizer reads a cropped plate. It reports failures in-band.
type TextRecognizer interface {
	Recognize(crop image.Image) string
}

// Plate is one recognized plate.
type Plate struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
	Frame      int             `json:"frame"`
}

// Annotator detects, reads and draws plates on a single frame.
type Annotator struct {
	det   PlateDetector
	rec   TextRecognizer
	style Style
}

// New creates an annotator. Zero style fields fall back to DefaultStyle.
func New(det PlateDetector, rec TextRecognizer, style Style) *Annotator {
	return &Annotator{det: det, rec: rec, style: style.withDefaults()}
}

// Annotate returns a drawn copy of img and the plates found in it. The input is
// never modified. When detection fails the unmodified copy is returned together
// with the error and no plates.
func (a *Annotator) Annotate(img image.Image) (*image.RGBA, []Plate, error) {
	if img == nil {
		return nil, nil, errors.New("input image is nil")
	}

	out := utils.CloneRGBA(img)
	origin := img.Bounds().Min

	dets, err := a.det.Detect(img)
	if err != nil {
		return out, []Plate{}, err
	}

	plates := make([]Plate, 0, len(dets))
	for _, d := range dets {
		crop := utils.CropImageRect(img, d.Box)
		text := a.rec.Recognize(crop)

		local := d.Box.Sub(origin)
		utils.DrawRect(out, local, a.style.BoxColor, a.style.Thickness)
		a.drawLabel(out, Label(text, d.Confidence), local.Min.X, local.Min.Y-a.style.LabelOffset)

		plates = append(plates, Plate{
			Text:       text,
			Confidence: d.Confidence,
			Box:        d.Box,
		})
	}

	return out, plates, nil
}

// drawLabel writes text with its baseline starting at (x, y). Pixels outside dst are clipped.
func (a *Annotator) drawLabel(dst *image.RGBA, text string, x, y int) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(a.style.TextColor),
		Face: a.style.Face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(foldASCII(text))
}
