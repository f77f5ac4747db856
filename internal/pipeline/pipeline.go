// Package pipeline runs plate annotation over still images and videos.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/MeKo-Tech/platescan/internal/annotate"
	"github.com/MeKo-Tech/platescan/internal/detector"
	"github.com/MeKo-Tech/platescan/internal/media"
	"github.com/MeKo-Tech/platescan/internal/models"
	"github.com/MeKo-Tech/platescan/internal/recognizer"
)

// DefaultCodec is the FourCC of the output video stream.
const DefaultCodec = "avc1"

// VideoConfig controls video output.
type VideoConfig struct {
	Codec   string // FourCC for the writer (default: avc1)
	TempDir string // directory for staged uploads and outputs, empty for the OS temp dir
}

// Config holds configuration for the pipeline and its components.
type Config struct {
	ModelsDir  string
	Detector   detector.Config
	Recognizer recognizer.Config
	Style      annotate.Style
	Video      VideoConfig
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir:  models.GetModelsDir(""),
		Detector:   detector.DefaultConfig(),
		Recognizer: recognizer.DefaultConfig(),
		Style:      annotate.DefaultStyle(),
		Video:      VideoConfig{Codec: DefaultCodec},
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg    Config
	det    annotate.PlateDetector
	rec    annotate.TextRecognizer
	opener VideoOpener
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithModelsDir sets the models directory and updates the detector model path.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.ModelsDir = dir
	}
	b.cfg.Detector.UpdateModelPath(b.cfg.ModelsDir)
	if b.cfg.Recognizer.TessdataPrefix == "" {
		b.cfg.Recognizer.TessdataPrefix = models.GetTessdataDir(b.cfg.ModelsDir)
	}
	return b
}

// WithDetectorModelPath overrides the detector model path directly.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Detector.ModelPath = path
	}
	return b
}

// WithDetectorThresholds sets the confidence and NMS IoU thresholds (ignored when <= 0).
func (b *Builder) WithDetectorThresholds(conf, iou float64) *Builder {
	if conf > 0 {
		b.cfg.Detector.ConfThreshold = conf
	}
	if iou > 0 {
		b.cfg.Detector.NMSThreshold = iou
	}
	return b
}

// WithThreads sets the ONNX intra-op thread count (if > 0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.NumThreads = n
	}
	return b
}

// WithLanguage sets the OCR language.
func (b *Builder) WithLanguage(lang string) *Builder {
	if lang != "" {
		b.cfg.Recognizer.Language = lang
	}
	return b
}

// WithTessdataPrefix sets the tessdata directory.
func (b *Builder) WithTessdataPrefix(dir string) *Builder {
	b.cfg.Recognizer.TessdataPrefix = dir
	return b
}

// WithStyle sets box and label drawing options.
func (b *Builder) WithStyle(style annotate.Style) *Builder {
	b.cfg.Style = style
	return b
}

// WithTempDir sets where video jobs stage their files.
func (b *Builder) WithTempDir(dir string) *Builder {
	b.cfg.Video.TempDir = dir
	return b
}

// WithCodec sets the output video FourCC.
func (b *Builder) WithCodec(codec string) *Builder {
	if codec != "" {
		b.cfg.Video.Codec = codec
	}
	return b
}

// WithDetector injects an already loaded detector instead of loading one in Build.
func (b *Builder) WithDetector(det annotate.PlateDetector) *Builder {
	b.det = det
	return b
}

// WithRecognizer injects a text recognizer instead of creating a Tesseract one.
func (b *Builder) WithRecognizer(rec annotate.TextRecognizer) *Builder {
	b.rec = rec
	return b
}

// WithVideoOpener sets the video backend. Without one ProcessVideo fails.
func (b *Builder) WithVideoOpener(opener VideoOpener) *Builder {
	b.opener = opener
	return b
}

// Config returns the current builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Build assembles the pipeline. A detector whose model fails to load does not
// fail the build; it reports ErrModelUnavailable on use.
func (b *Builder) Build() (*Pipeline, error) {
	if b.cfg.Video.Codec == "" {
		b.cfg.Video.Codec = DefaultCodec
	}
	if len(b.cfg.Video.Codec) != 4 {
		return nil, fmt.Errorf("codec must be a 4 character FourCC, got %q", b.cfg.Video.Codec)
	}

	p := &Pipeline{
		cfg:    b.cfg,
		det:    b.det,
		rec:    b.rec,
		opener: b.opener,
		temp:   media.NewTempStore(b.cfg.Video.TempDir),
	}
	if p.det == nil {
		d := detector.Load(b.cfg.Detector)
		p.det = d
		p.ownedDet = d
	}
	if p.rec == nil {
		p.rec = recognizer.New(recognizer.NewTesseractEngine(b.cfg.Recognizer))
	}
	p.annotator = annotate.New(p.det, p.rec, b.cfg.Style)
	return p, nil
}

// Pipeline runs detection, recognition and drawing over images and videos.
type Pipeline struct {
	cfg       Config
	det       annotate.PlateDetector
	ownedDet  *detector.Detector
	rec       annotate.TextRecognizer
	annotator *annotate.Annotator
	opener    VideoOpener
	temp      *media.TempStore
}

// ImageResult is the outcome of one still image.
type ImageResult struct {
	Image    *image.RGBA
	Plates   []annotate.Plate
	Duration time.Duration
}

// ProcessImage annotates one image. On detection failure the unannotated copy is
// returned along with the error.
func (p *Pipeline) ProcessImage(img image.Image) (*ImageResult, error) {
	start := time.Now()
	out, plates, err := p.annotator.Annotate(img)
	if out == nil {
		return nil, err
	}
	return &ImageResult{Image: out, Plates: plates, Duration: time.Since(start)}, err
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// TempStore returns the store used for staged uploads and outputs.
func (p *Pipeline) TempStore() *media.TempStore { return p.temp }

// DetectorErr reports a detector load failure, if the detector exposes one.
func (p *Pipeline) DetectorErr() error {
	return availability(p.det)
}

// RecognizerErr reports an OCR engine problem, if the recognizer exposes one.
func (p *Pipeline) RecognizerErr() error {
	return availability(p.rec)
}

func availability(v any) error {
	if e, ok := v.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// Close releases the detector if the pipeline loaded it.
func (p *Pipeline) Close() error {
	if p.ownedDet == nil {
		return nil
	}
	if err := p.ownedDet.Close(); err != nil {
		return fmt.Errorf("close detector: %w", err)
	}
	return nil
}

// ErrNoVideoBackend is returned by ProcessVideo when no VideoOpener was configured.
var ErrNoVideoBackend = errors.New("no video backend configured")
