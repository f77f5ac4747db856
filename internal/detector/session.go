package detector

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/platescan/internal/onnx"
	"github.com/yalue/onnxruntime_go"
)

// inferencer runs one forward pass. The returned data is owned by the caller.
type inferencer interface {
	Run(input onnx.Tensor) ([]float32, []int64, error)
	Close() error
}

// onnxSession is the ONNX Runtime backed inferencer.
type onnxSession struct {
	session *onnxruntime_go.DynamicAdvancedSession
}

// createSession creates a CPU-only ONNX session with the given configuration.
func createSession(modelPath string, inputInfo, outputInfo onnxruntime_go.InputOutputInfo,
	config Config,
) (*onnxSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if config.NumThreads > 0 {
		if err = sessionOptions.SetIntraOpNumThreads(config.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxSession{session: session}, nil
}

func (s *onnxSession) Run(tensor onnx.Tensor) ([]float32, []int64, error) {
	if err := onnx.VerifyImageTensor(tensor); err != nil {
		return nil, nil, fmt.Errorf("invalid tensor: %w", err)
	}

	inputTensor, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			slog.Warn("Error destroying input tensor", "error", err)
		}
	}()

	// ONNX Runtime allocates the output tensor.
	outputs := []onnxruntime_go.Value{nil}
	if err := s.session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("Error destroying output tensor", "error", err)
		}
	}()

	floatTensor, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}

	raw := floatTensor.GetData()
	data := make([]float32, len(raw))
	copy(data, raw)
	shape := outputs[0].GetShape()

	return data, []int64(shape), nil
}

func (s *onnxSession) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
