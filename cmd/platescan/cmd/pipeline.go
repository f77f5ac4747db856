package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/platescan/internal/config"
	"github.com/MeKo-Tech/platescan/internal/onnx"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/MeKo-Tech/platescan/internal/video"
	"github.com/spf13/cobra"
)

// addPipelineFlags registers the detection and OCR overrides shared by
// the image, video and serve commands.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "override plate detector model path")
	cmd.Flags().Float64("conf", 0.25, "minimum detection confidence (0..1)")
	cmd.Flags().Float64("iou", 0.7, "NMS IoU threshold (0..1)")
	cmd.Flags().String("lang", "eng", "tesseract language")
	cmd.Flags().String("tessdata", "", "tesseract tessdata directory")
	cmd.Flags().String("codec", "avc1", "FourCC of the output video codec")
	cmd.Flags().String("temp-dir", "", "directory for temporary video files")
}

// applyPipelineFlags copies explicitly set flags over cfg and revalidates it.
func applyPipelineFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Pipeline.Detector.ModelPath, _ = flags.GetString("model")
	}
	if flags.Changed("conf") {
		cfg.Pipeline.Detector.ConfThreshold, _ = flags.GetFloat64("conf")
	}
	if flags.Changed("iou") {
		cfg.Pipeline.Detector.NMSThreshold, _ = flags.GetFloat64("iou")
	}
	if flags.Changed("lang") {
		cfg.Pipeline.Recognizer.Language, _ = flags.GetString("lang")
	}
	if flags.Changed("tessdata") {
		cfg.Pipeline.Recognizer.TessdataPrefix, _ = flags.GetString("tessdata")
	}
	if flags.Changed("codec") {
		cfg.Video.Codec, _ = flags.GetString("codec")
	}
	if flags.Changed("temp-dir") {
		cfg.Video.TempDir, _ = flags.GetString("temp-dir")
	}
	return cfg.Validate()
}

// buildPipeline assembles the pipeline with the OpenCV video backend. Model
// load failures are logged and left for the pipeline to report per request.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	pc := cfg.ToPipelineConfig()
	p, err := pipeline.NewBuilder().
		WithConfig(pc).
		WithVideoOpener(video.NewOpener()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	if err := p.DetectorErr(); err != nil {
		slog.Error("Plate detector unavailable", "model", pc.Detector.ModelPath, "error", err)
	}
	if err := p.RecognizerErr(); err != nil {
		slog.Warn("OCR engine unavailable", "error", err)
	}
	return p, nil
}

// closePipeline releases the pipeline and then the ONNX Runtime environment.
func closePipeline(p *pipeline.Pipeline) {
	if err := p.Close(); err != nil {
		slog.Warn("Failed to close pipeline", "error", err)
	}
	if err := onnx.DestroyEnvironment(); err != nil {
		slog.Warn("Failed to release ONNX Runtime", "error", err)
	}
}
