package recognizer

import (
	"errors"
	"fmt"
	"os"

	"github.com/otiai10/gosseract/v2"
)

// Engine turns an encoded single-line image into text.
type Engine interface {
	Text(png []byte) (string, error)
}

// Config holds configuration for the OCR engine.
type Config struct {
	TessdataPrefix string // Directory holding *.traineddata, empty for the library default
	Language       string // Tesseract language code (default: eng)
}

// DefaultConfig returns the default OCR engine configuration.
func DefaultConfig() Config {
	return Config{Language: "eng"}
}

// ErrEngineUnavailable is returned when the OCR engine cannot be used at all.
var ErrEngineUnavailable = errors.New("OCR engine unavailable")

// TesseractEngine runs Tesseract in single text line mode through gosseract.
// A fresh client is created per call so the engine is safe for concurrent use.
type TesseractEngine struct {
	config        Config
	clientFactory func() *gosseract.Client
	unavailable   error
}

// NewTesseractEngine constructs the engine. A configured but missing tessdata
// directory makes the engine unavailable rather than failing construction.
func NewTesseractEngine(config Config) *TesseractEngine {
	if config.Language == "" {
		config.Language = DefaultConfig().Language
	}
	e := &TesseractEngine{config: config, clientFactory: gosseract.NewClient}
	if config.TessdataPrefix != "" {
		if fi, err := os.Stat(config.TessdataPrefix); err != nil {
			e.unavailable = fmt.Errorf("%w: tessdata not found at %s: %w", ErrEngineUnavailable, config.TessdataPrefix, err)
		} else if !fi.IsDir() {
			e.unavailable = fmt.Errorf("%w: tessdata path %s is not a directory", ErrEngineUnavailable, config.TessdataPrefix)
		}
	}
	return e
}

// Err reports why the engine is unavailable, or nil.
func (e *TesseractEngine) Err() error { return e.unavailable }

// Config returns the engine configuration.
func (e *TesseractEngine) Config() Config { return e.config }

// Text recognizes png with page segmentation mode 7 and the default OCR engine mode.
func (e *TesseractEngine) Text(png []byte) (string, error) {
	if e.unavailable != nil {
		return "", e.unavailable
	}

	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if e.config.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.config.TessdataPrefix); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.config.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := c.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
