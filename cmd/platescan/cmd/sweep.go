package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/platescan/internal/media"
	"github.com/spf13/cobra"
)

// sweepCmd represents the sweep command.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove leftover video files from the temp directory",
	Long: `Delete every .mp4, .avi and .mov file directly inside the temp directory.
Files that cannot be deleted are reported and skipped.

Examples:
  platescan sweep
  platescan sweep --dir /var/tmp/platescan`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := GetConfig().Video.TempDir
		if cmd.Flags().Changed("dir") {
			dir, _ = cmd.Flags().GetString("dir")
		}

		res, err := media.NewSweeper(dir).Sweep()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, path := range res.Removed {
			_, _ = fmt.Fprintf(out, "removed %s\n", path)
		}
		for _, f := range res.Failed {
			_, _ = fmt.Fprintf(out, "failed  %s: %v\n", f.Path, f.Err)
		}
		_, _ = fmt.Fprintf(out, "Swept %d file(s), %d failure(s)\n", len(res.Removed), len(res.Failed))
		return nil
	},
}

// sweepTemp runs a sweep and only logs the outcome.
func sweepTemp(dir string) {
	if _, err := media.NewSweeper(dir).Sweep(); err != nil {
		slog.Warn("Temp sweep failed", "dir", dir, "error", err)
	}
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().String("dir", "", "directory to sweep (default video.temp_dir or the OS temp dir)")
}
