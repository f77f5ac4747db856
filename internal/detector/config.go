package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/platescan/internal/models"
	"github.com/yalue/onnxruntime_go"
)

// Config holds configuration for the plate detector.
type Config struct {
	ModelPath     string  // Path to ONNX detection model
	LibraryPath   string  // ONNX Runtime shared library, empty for auto-discovery
	InputSize     int     // Square model input side, overridden by static model shapes (default: 640)
	ConfThreshold float64 // Minimum class score for a candidate (default: 0.25)
	NMSThreshold  float64 // IoU above which the weaker box is suppressed (default: 0.7)
	NumThreads    int     // Number of CPU threads (default: 0 for auto)
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:     models.GetDetectorModelPath(""),
		InputSize:     640,
		ConfThreshold: 0.25,
		NMSThreshold:  0.7,
		NumThreads:    0,
	}
}

// UpdateModelPath resolves ModelPath under modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.ModelPath = models.GetDetectorModelPath(modelsDir)
}

// validateConfig validates the detector configuration.
func validateConfig(config Config) error {
	if config.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if config.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", config.InputSize)
	}
	if config.ConfThreshold < 0 || config.ConfThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %f", config.ConfThreshold)
	}
	if config.NMSThreshold < 0 || config.NMSThreshold > 1 {
		return fmt.Errorf("NMS threshold must be in [0,1], got %f", config.NMSThreshold)
	}
	return nil
}

// validateModelInfo gets and validates model input/output information.
func validateModelInfo(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("failed to get model input/output info: %w", err)
	}

	if len(inputs) != 1 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) < 1 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			errors.New("model has no outputs")
	}

	inputInfo := inputs[0]
	outputInfo := outputs[0]

	if len(inputInfo.Dimensions) != 4 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("expected 4D input tensor, got %dD", len(inputInfo.Dimensions))
	}

	return inputInfo, outputInfo, nil
}
