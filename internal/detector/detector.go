package detector

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/platescan/internal/mempool"
	"github.com/MeKo-Tech/platescan/internal/models"
	"github.com/MeKo-Tech/platescan/internal/onnx"
	"github.com/MeKo-Tech/platescan/internal/utils"
)

// ErrModelUnavailable is returned by Detect when the model could not be loaded.
var ErrModelUnavailable = errors.New("detection model unavailable")

// Detection is one located plate in source image pixels.
// Box always satisfies Min.X < Max.X and Min.Y < Max.Y.
type Detection struct {
	Box        image.Rectangle
	Confidence float64 // best class score in [0,1]
	Class      int
}

// Detector locates license plates using an ONNX YOLO export.
type Detector struct {
	config    Config
	infer     inferencer
	inputSize int
	loadErr   error
	mu        sync.RWMutex
}

// NewDetector creates a detector and fails if the model cannot be loaded.
func NewDetector(config Config) (*Detector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	if err := models.ValidateModelExists(config.ModelPath); err != nil {
		return nil, err
	}

	slog.Debug("Initializing detector",
		"model_path", config.ModelPath,
		"input_size", config.InputSize,
		"conf_threshold", config.ConfThreshold,
		"nms_threshold", config.NMSThreshold)

	if err := onnx.InitEnvironment(config.LibraryPath); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := validateModelInfo(config.ModelPath)
	if err != nil {
		return nil, err
	}

	session, err := createSession(config.ModelPath, inputInfo, outputInfo, config)
	if err != nil {
		return nil, err
	}

	inputSize := config.InputSize
	if size, ok := onnx.SquareInputSize(inputInfo.Dimensions); ok {
		inputSize = size
	}

	slog.Debug("Detector initialized successfully", "input_size", inputSize)
	return &Detector{config: config, infer: session, inputSize: inputSize}, nil
}

// Load creates the process-wide detector. It never returns nil: when loading fails
// the failure is logged once and every Detect call reports ErrModelUnavailable.
func Load(config Config) *Detector {
	d, err := NewDetector(config)
	if err != nil {
		slog.Error("Failed to load detection model", "model_path", config.ModelPath, "error", err)
		return Unavailable(config, err)
	}
	return d
}

// Unavailable returns a detector that fails every call with ErrModelUnavailable.
func Unavailable(config Config, cause error) *Detector {
	if cause == nil {
		cause = errors.New("no model loaded")
	}
	return &Detector{config: config, inputSize: config.InputSize, loadErr: cause}
}

// newWithInferencer wires a detector around an arbitrary inferencer.
func newWithInferencer(config Config, infer inferencer) *Detector {
	return &Detector{config: config, infer: infer, inputSize: config.InputSize}
}

// Err returns the load failure, or nil when the model is ready.
func (d *Detector) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadErr
}

// Ready reports whether Detect can run inference.
func (d *Detector) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadErr == nil && d.infer != nil
}

// GetConfig returns a copy of the detector's configuration.
func (d *Detector) GetConfig() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// InputSize returns the square model input side used for letterboxing.
func (d *Detector) InputSize() int {
	return d.inputSize
}

// Detect returns plate detections for img in source pixel coordinates.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.loadErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, d.loadErr)
	}
	if d.infer == nil {
		return nil, fmt.Errorf("%w: detector closed", ErrModelUnavailable)
	}

	canvas, lb, err := utils.LetterboxImage(img, d.inputSize)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	buf := mempool.GetFloat32(3 * d.inputSize * d.inputSize)
	defer mempool.PutFloat32(buf)
	data, w, h, err := utils.NormalizeImageInto(canvas, buf)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	tensor, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}

	out, shape, err := d.infer.Run(tensor)
	if err != nil {
		return nil, err
	}

	dets, err := postprocess(out, shape, lb, img.Bounds(), d.config)
	if err != nil {
		return nil, fmt.Errorf("postprocessing failed: %w", err)
	}
	return dets, nil
}

// Close releases the inference session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.infer == nil {
		return nil
	}
	err := d.infer.Close()
	d.infer = nil
	if err != nil {
		return fmt.Errorf("failed to destroy detector session: %w", err)
	}
	return nil
}
