package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/platescan/internal/annotate"
)

const (
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatText = "text"
)

var validFormats = []string{outputFormatText, outputFormatJSON, outputFormatCSV}

func validateFormat(format string) error {
	if !slices.Contains(validFormats, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
	}
	return nil
}

// plateReport is the machine readable result of one CLI run.
type plateReport struct {
	Input       string           `json:"input"`
	Output      string           `json:"output"`
	Kind        string           `json:"kind"`
	Frames      int              `json:"frames,omitempty"`
	FrameErrors int              `json:"frame_errors,omitempty"`
	Truncated   bool             `json:"truncated,omitempty"`
	Plates      []annotate.Plate `json:"plates"`
}

func writeReport(w io.Writer, format string, r plateReport) error {
	if r.Plates == nil {
		r.Plates = []annotate.Plate{}
	}
	switch format {
	case outputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case outputFormatCSV:
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"frame", "text", "confidence", "x1", "y1", "x2", "y2"})
		for _, p := range r.Plates {
			_ = cw.Write([]string{
				strconv.Itoa(p.Frame),
				p.Text,
				strconv.FormatFloat(p.Confidence, 'f', 4, 64),
				strconv.Itoa(p.Box.Min.X), strconv.Itoa(p.Box.Min.Y),
				strconv.Itoa(p.Box.Max.X), strconv.Itoa(p.Box.Max.Y),
			})
		}
		cw.Flush()
		return cw.Error()
	default:
		return writeText(w, r)
	}
}

func writeText(w io.Writer, r plateReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s\n", r.Input, r.Output)
	if r.Kind == "video" {
		fmt.Fprintf(&b, "Frames: %d", r.Frames)
		if r.FrameErrors > 0 {
			fmt.Fprintf(&b, " (%d not annotated)", r.FrameErrors)
		}
		if r.Truncated {
			b.WriteString(" (video ended early)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Plates: %d\n", len(r.Plates))
	for _, p := range r.Plates {
		if r.Kind == "video" {
			fmt.Fprintf(&b, "  frame %-5d ", p.Frame)
		} else {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-12s %6.2f%%  [%d,%d %d,%d]\n",
			p.Text, p.Confidence*100, p.Box.Min.X, p.Box.Min.Y, p.Box.Max.X, p.Box.Max.Y)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// defaultOutputPath derives "<dir>/<name>_annotated<ext>" from input.
func defaultOutputPath(input, ext string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "_annotated" + ext
}
