package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"os"
	"sync/atomic"

	"github.com/MeKo-Tech/platescan/internal/annotate"
	"github.com/MeKo-Tech/platescan/internal/media"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
)

// mockPipeline is a pipeline stand-in that records calls and writes real temp files.
type mockPipeline struct {
	temp        *media.TempStore
	imageCalls  atomic.Int32
	videoCalls  atomic.Int32
	imageErr    error
	videoErr    error
	detectorErr error
	plates      []annotate.Plate
	stagedPath  string
	outputPath  string
}

func newMockPipeline(dir string) *mockPipeline {
	return &mockPipeline{
		temp: media.NewTempStore(dir),
		plates: []annotate.Plate{
			{Text: "AB 123", Confidence: 0.91, Box: image.Rect(10, 10, 60, 30)},
		},
	}
}

func (m *mockPipeline) ProcessImage(img image.Image) (*pipeline.ImageResult, error) {
	m.imageCalls.Add(1)
	if m.imageErr != nil {
		return nil, m.imageErr
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	out.Set(b.Min.X, b.Min.Y, color.RGBA{G: 255, A: 255})
	return &pipeline.ImageResult{Image: out, Plates: m.plates}, nil
}

func (m *mockPipeline) ProcessVideo(
	ctx context.Context,
	path string,
	progress pipeline.ProgressCallback,
) (*pipeline.VideoResult, error) {
	m.videoCalls.Add(1)
	m.stagedPath = path
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New("staged input missing")
	}
	if m.videoErr != nil {
		return nil, m.videoErr
	}
	out, err := m.temp.Reserve(".mp4")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, []byte("fake mp4"), 0o600); err != nil {
		return nil, err
	}
	m.outputPath = out

	if progress != nil {
		progress.OnStart(2)
		progress.OnProgress(1, 2)
		progress.OnProgress(2, 2)
		progress.OnComplete()
	}
	plates := make([]annotate.Plate, 0, 2)
	for i := range 2 {
		p := m.plates[0]
		p.Frame = i
		plates = append(plates, p)
	}
	return &pipeline.VideoResult{
		OutputPath:    out,
		Info:          pipeline.VideoInfo{Width: 64, Height: 48, FPS: 25, FrameCount: 2},
		FramesWritten: 2,
		Plates:        plates,
	}, nil
}

func (m *mockPipeline) TempStore() *media.TempStore { return m.temp }

func (m *mockPipeline) DetectorErr() error { return m.detectorErr }

func (m *mockPipeline) RecognizerErr() error { return nil }

func (m *mockPipeline) Close() error { return nil }

// createTestPNG returns an encoded w x h PNG.
func createTestPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// multipartBody builds a multipart upload with one "file" part.
func multipartBody(filename string, data []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", filename)
	_, _ = fw.Write(data)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}
