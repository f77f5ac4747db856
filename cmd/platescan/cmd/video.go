package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/platescan/internal/media"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/spf13/cobra"
)

// videoCmd represents the video command.
var videoCmd = &cobra.Command{
	Use:   "video <file>",
	Short: "Annotate license plates in every frame of a video",
	Long: `Process a video frame by frame. Every frame is annotated with the plates found
in it and written to an MP4 next to the input. Progress is shown on stderr;
Ctrl-C stops the job and removes the partial output.

Supported formats: MP4, AVI, MOV

Examples:
  platescan video traffic.mp4
  platescan video dashcam.avi --output out.mp4 --format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		if kind, err := media.Classify(input); err != nil || kind != media.KindVideo {
			return fmt.Errorf("unsupported video file: %s", input)
		}
		if _, err := os.Stat(input); err != nil {
			return fmt.Errorf("cannot read input: %w", err)
		}

		cfg := *GetConfig()
		if err := applyPipelineFlags(cmd, &cfg); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format); err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = defaultOutputPath(input, ".mp4")
		}
		quiet, _ := cmd.Flags().GetBool("quiet")

		p, err := buildPipeline(&cfg)
		if err != nil {
			return err
		}
		defer closePipeline(p)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := processVideoFile(ctx, p, input, output, videoProgress(cmd.ErrOrStderr(), quiet))
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), format, report)
	},
}

type videoProcessor interface {
	ProcessVideo(ctx context.Context, path string, progress pipeline.ProgressCallback) (*pipeline.VideoResult, error)
}

func processVideoFile(
	ctx context.Context,
	p videoProcessor,
	input, output string,
	progress pipeline.ProgressCallback,
) (plateReport, error) {
	res, err := p.ProcessVideo(ctx, input, progress)
	if err != nil {
		return plateReport{}, err
	}
	if err := moveFile(res.OutputPath, output); err != nil {
		_ = media.Remove(res.OutputPath)
		return plateReport{}, fmt.Errorf("save output video: %w", err)
	}
	return plateReport{
		Input:       input,
		Output:      output,
		Kind:        "video",
		Frames:      res.FramesWritten,
		FrameErrors: res.FrameErrors,
		Truncated:   res.Truncated,
		Plates:      res.Plates,
	}, nil
}

// videoProgress draws a console bar and mirrors progress to the debug log.
func videoProgress(w io.Writer, quiet bool) pipeline.ProgressCallback {
	logged := pipeline.NewLogProgressCallback(slog.Default(), slog.LevelDebug)
	if quiet {
		return logged
	}
	return pipeline.MultiProgressCallback{
		pipeline.NewConsoleProgressCallback(w, "Annotating "),
		logged,
	}
}

// moveFile renames src to dst, copying when they live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return media.Remove(src)
}

func init() {
	rootCmd.AddCommand(videoCmd)
	videoCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json, csv)")
	videoCmd.Flags().StringP("output", "o", "", "annotated video path (default <input>_annotated.mp4)")
	videoCmd.Flags().BoolP("quiet", "q", false, "do not draw a progress bar")
	addPipelineFlags(videoCmd)
}
