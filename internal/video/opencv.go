// Package video provides the OpenCV backed frame source and sink used by the
// pipeline for video jobs.
package video

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"gocv.io/x/gocv"
)

// FallbackFPS is used for the output when the source does not report a frame rate.
const FallbackFPS = 25.0

// Opener implements pipeline.VideoOpener on top of OpenCV.
type Opener struct{}

// NewOpener returns the OpenCV video backend.
func NewOpener() *Opener { return &Opener{} }

// OpenSource opens a video file for sequential decoding.
func (o *Opener) OpenSource(path string) (pipeline.FrameSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("capture not opened for %s", path)
	}

	info := pipeline.VideoInfo{
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        capture.Get(gocv.VideoCaptureFPS),
		FrameCount: frameCount(capture.Get(gocv.VideoCaptureFrameCount)),
	}
	if info.Width <= 0 || info.Height <= 0 {
		_ = capture.Close()
		return nil, fmt.Errorf("invalid frame size %dx%d", info.Width, info.Height)
	}

	return &source{capture: capture, mat: gocv.NewMat(), info: info}, nil
}

// CreateSink opens an encoder writing frames of info's size to path.
func (o *Opener) CreateSink(path, codec string, info pipeline.VideoInfo) (pipeline.FrameSink, error) {
	fps := info.FPS
	if fps <= 0 || math.IsNaN(fps) {
		slog.Warn("Source frame rate unknown, using fallback", "fps", FallbackFPS)
		fps = FallbackFPS
	}

	writer, err := gocv.VideoWriterFile(path, codec, fps, info.Width, info.Height, true)
	if err != nil {
		return nil, err
	}
	if !writer.IsOpened() {
		_ = writer.Close()
		return nil, fmt.Errorf("encoder %q not available for %s", codec, path)
	}
	return &sink{writer: writer, size: image.Pt(info.Width, info.Height)}, nil
}

// frameCount converts the capture property into a count; non-positive means unknown.
func frameCount(v float64) int {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(v)
}

type source struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	info    pipeline.VideoInfo
}

func (s *source) Info() pipeline.VideoInfo { return s.info }

// Read decodes the next frame. OpenCV does not distinguish end of stream from a
// decode error, so both report io.EOF.
func (s *source) Read() (image.Image, error) {
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

func (s *source) Close() error {
	return errors.Join(s.mat.Close(), s.capture.Close())
}

type sink struct {
	writer *gocv.VideoWriter
	size   image.Point
}

func (s *sink) Write(frame image.Image) error {
	if got := frame.Bounds().Size(); got != s.size {
		return fmt.Errorf("frame size %v does not match output %v", got, s.size)
	}
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer func() { _ = mat.Close() }()
	return s.writer.Write(mat)
}

func (s *sink) Close() error {
	return s.writer.Close()
}
