package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/platescan/internal/annotate"
	"github.com/MeKo-Tech/platescan/internal/config"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/MeKo-Tech/platescan/internal/utils"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePlates = []annotate.Plate{
	{Text: "B MK 204", Confidence: 0.875, Box: image.Rect(4, 6, 40, 18), Frame: 3},
}

type fakeImageProcessor struct{ err error }

func (f fakeImageProcessor) ProcessImage(img image.Image) (*pipeline.ImageResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := utils.CloneRGBA(img)
	out.Set(0, 0, color.RGBA{G: 255, A: 255})
	return &pipeline.ImageResult{Image: out, Plates: samplePlates}, nil
}

type fakeVideoProcessor struct {
	dir string
	err error
}

func (f fakeVideoProcessor) ProcessVideo(
	ctx context.Context,
	path string,
	progress pipeline.ProgressCallback,
) (*pipeline.VideoResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := filepath.Join(f.dir, "platescan-out.mp4")
	if err := os.WriteFile(out, []byte("video"), 0o600); err != nil {
		return nil, err
	}
	progress.OnStart(4)
	progress.OnProgress(4, 4)
	progress.OnComplete()
	return &pipeline.VideoResult{
		OutputPath:    out,
		FramesWritten: 4,
		FrameErrors:   1,
		Plates:        samplePlates,
	}, nil
}

func TestImageCommand(t *testing.T) {
	assert.True(t, strings.HasPrefix(imageCmd.Use, "image"))
	assert.NotEmpty(t, imageCmd.Short)
	for _, name := range []string{"format", "output", "conf", "iou", "model", "lang"} {
		assert.NotNil(t, imageCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestImageCommandRejectsInput(t *testing.T) {
	_, err := executeRoot(t, "image")
	assert.Error(t, err)

	_, err = executeRoot(t, "image", "notes.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image file")
}

func TestProcessImageFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "car.png")
	require.NoError(t, utils.SavePNG(input, image.NewRGBA(image.Rect(0, 0, 20, 10))))
	out := defaultOutputPath(input, ".png")

	report, err := processImageFile(fakeImageProcessor{}, input, out)
	require.NoError(t, err)
	assert.Equal(t, "image", report.Kind)
	assert.Len(t, report.Plates, 1)

	img, _, err := utils.LoadImage(out)
	require.NoError(t, err)
	r, g, _, _ := img.At(0, 0).RGBA()
	assert.Zero(t, r)
	assert.Equal(t, uint32(0xffff), g)

	_, err = processImageFile(fakeImageProcessor{err: errors.New("model unavailable")}, input, out)
	assert.ErrorContains(t, err, "detection failed")
}

func TestVideoCommandRejectsInput(t *testing.T) {
	_, err := executeRoot(t, "video", "clip.gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported video file")

	_, err = executeRoot(t, "video", filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read input")
}

func TestProcessVideoFile(t *testing.T) {
	tmp := t.TempDir()
	dest := filepath.Join(t.TempDir(), "result.mp4")
	var bar bytes.Buffer

	report, err := processVideoFile(context.Background(), fakeVideoProcessor{dir: tmp}, "in.mp4", dest, videoProgress(&bar, false))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Frames)
	assert.Equal(t, 1, report.FrameErrors)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, filepath.Join(tmp, "platescan-out.mp4"))
	assert.Contains(t, bar.String(), "Annotating")

	_, err = processVideoFile(context.Background(), fakeVideoProcessor{err: pipeline.ErrOpenSource}, "in.mp4", dest,
		videoProgress(&bar, true))
	assert.ErrorIs(t, err, pipeline.ErrOpenSource)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o600))
	dst := filepath.Join(dir, "b.mp4")

	require.NoError(t, moveFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.NoFileExists(t, src)

	assert.Error(t, moveFile(src, dst))
}

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.MOV", "c.avi", "keep.txt", "keep.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	output, err := executeRoot(t, "sweep", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, output, "Swept 3 file(s), 0 failure(s)")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{"keep.txt", "keep.png"}, left)
}

func TestSweepCommandMissingDir(t *testing.T) {
	_, err := executeRoot(t, "sweep", "--dir", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	report := plateReport{Input: "in.mp4", Output: "out.mp4", Kind: "video", Frames: 10, Truncated: true, Plates: samplePlates}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(&buf, outputFormatText, report))
		out := buf.String()
		assert.Contains(t, out, "Frames: 10 (video ended early)")
		assert.Contains(t, out, "frame 3")
		assert.Contains(t, out, "B MK 204")
		assert.Contains(t, out, "87.50%")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(&buf, outputFormatJSON, plateReport{Kind: "image"}))
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, []any{}, decoded["plates"])
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(&buf, outputFormatCSV, report))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "frame,text,confidence,x1,y1,x2,y2", lines[0])
		assert.Equal(t, "3,B MK 204,0.8750,4,6,40,18", lines[1])
	})

	assert.Error(t, validateFormat("xml"))
	assert.NoError(t, validateFormat(outputFormatCSV))
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "car_annotated.png"), defaultOutputPath(filepath.Join("dir", "car.jpg"), ".png"))
	assert.Equal(t, "clip_annotated.mp4", defaultOutputPath("clip.MOV", ".mp4"))
}

func TestApplyPipelineFlags(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "x"}
		addPipelineFlags(c)
		return c
	}

	c := newCmd()
	require.NoError(t, c.Flags().Parse([]string{"--conf", "0.5", "--lang", "deu", "--codec", "mp4v"}))
	cfg := config.DefaultConfig()
	require.NoError(t, applyPipelineFlags(c, &cfg))
	assert.InDelta(t, 0.5, cfg.Pipeline.Detector.ConfThreshold, 1e-9)
	assert.Equal(t, "deu", cfg.Pipeline.Recognizer.Language)
	assert.Equal(t, "mp4v", cfg.Video.Codec)
	assert.InDelta(t, 0.7, cfg.Pipeline.Detector.NMSThreshold, 1e-9)

	c = newCmd()
	require.NoError(t, c.Flags().Parse([]string{"--conf", "1.5"}))
	cfg = config.DefaultConfig()
	assert.Error(t, applyPipelineFlags(c, &cfg))
}

func TestApplyServeFlags(t *testing.T) {
	require.NoError(t, serveCmd.Flags().Set("port", "9123"))
	t.Cleanup(func() {
		_ = serveCmd.Flags().Set("port", "8080")
		serveCmd.Flags().Lookup("port").Changed = false
	})

	cfg := config.DefaultConfig()
	applyServeFlags(serveCmd, &cfg.Server)
	assert.Equal(t, 9123, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platescan.yaml")

	output, err := executeRoot(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "conf_threshold")

	_, err = executeRoot(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = executeRoot(t, "config", "init", path, "--force")
	require.NoError(t, err)
}

func TestConfigShowCommand(t *testing.T) {
	output, err := executeRoot(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, output, "server:")
	assert.Contains(t, output, "max_upload_mb: 200")
	assert.Contains(t, output, "codec: avc1")
}
