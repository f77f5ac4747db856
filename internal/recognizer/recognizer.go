// Package recognizer reads the text of a cropped license plate.
package recognizer

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/platescan/internal/utils"
)

// FailedText replaces the plate text whenever recognition fails.
const FailedText = "OCR Failed"

// Recognizer wraps an Engine and never lets a failure escape to the caller.
type Recognizer struct {
	engine Engine
}

// New creates a recognizer over engine.
func New(engine Engine) *Recognizer {
	return &Recognizer{engine: engine}
}

// Recognize returns the trimmed text in crop, or FailedText. Failures are logged.
func (r *Recognizer) Recognize(crop image.Image) string {
	text, err := r.RecognizeText(crop)
	if err != nil {
		slog.Warn("OCR failed", "error", err)
		return FailedText
	}
	return text
}

// RecognizeText returns the trimmed text in crop and the underlying error, if any.
func (r *Recognizer) RecognizeText(crop image.Image) (string, error) {
	if r == nil || r.engine == nil {
		return "", ErrEngineUnavailable
	}
	if crop == nil || crop.Bounds().Empty() {
		return "", errors.New("empty crop")
	}

	data, err := utils.EncodePNG(crop)
	if err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}

	text, err := r.engine.Text(data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Err reports an engine-level availability problem, if the engine exposes one.
func (r *Recognizer) Err() error {
	if r == nil || r.engine == nil {
		return ErrEngineUnavailable
	}
	if e, ok := r.engine.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}
