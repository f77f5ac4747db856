package cmd

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/MeKo-Tech/platescan/internal/utils"
	"github.com/spf13/cobra"
)

// imageCmd represents the image command.
var imageCmd = &cobra.Command{
	Use:   "image <file>...",
	Short: "Detect and read license plates in images",
	Long: `Process one or more image files, draw a box and label around every plate
and write the annotated PNG next to the input.

Supported formats: JPEG, PNG, BMP

Examples:
  platescan image car.jpg
  platescan image *.png --format json
  platescan image car.jpg --output boxed.png`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		if err := applyPipelineFlags(cmd, &cfg); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format); err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output != "" && len(args) > 1 {
			return errors.New("--output can only be used with a single input file")
		}
		for _, path := range args {
			if !utils.IsSupportedImage(path) {
				return fmt.Errorf("unsupported image file: %s", path)
			}
		}

		p, err := buildPipeline(&cfg)
		if err != nil {
			return err
		}
		defer closePipeline(p)

		var failed int
		for _, path := range args {
			out := output
			if out == "" {
				out = defaultOutputPath(path, ".png")
			}
			report, err := processImageFile(p, path, out)
			if err != nil {
				slog.Error("Image processing failed", "input", path, "error", err)
				failed++
				continue
			}
			if err := writeReport(cmd.OutOrStdout(), format, report); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d images failed", failed, len(args))
		}
		return nil
	},
}

type imageProcessor interface {
	ProcessImage(img image.Image) (*pipeline.ImageResult, error)
}

func processImageFile(p imageProcessor, path, out string) (plateReport, error) {
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return plateReport{}, err
	}
	res, err := p.ProcessImage(img)
	if err != nil {
		return plateReport{}, fmt.Errorf("detection failed: %w", err)
	}
	if err := utils.SavePNG(out, res.Image); err != nil {
		return plateReport{}, err
	}
	return plateReport{Input: path, Output: out, Kind: "image", Plates: res.Plates}, nil
}

func init() {
	rootCmd.AddCommand(imageCmd)
	imageCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json, csv)")
	imageCmd.Flags().StringP("output", "o", "", "annotated image path (default <input>_annotated.png)")
	addPipelineFlags(imageCmd)
}
