package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/platescan/internal/annotate"
	"github.com/MeKo-Tech/platescan/internal/media"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/MeKo-Tech/platescan/internal/recognizer"
	"github.com/MeKo-Tech/platescan/internal/utils"
)

// detectError carries the HTTP status of a failed job.
type detectError struct {
	status int
	err    error
}

func (e *detectError) Error() string { return e.err.Error() }

func (e *detectError) Unwrap() error { return e.err }

func failWith(status int, err error) error { return &detectError{status: status, err: err} }

// statusOf returns the HTTP status for err, 500 when unknown.
func statusOf(err error) int {
	var de *detectError
	if errors.As(err, &de) {
		return de.status
	}
	return http.StatusInternalServerError
}

// runDetection dispatches an upload by its file name extension and runs the
// matching pipeline path. Unsupported types are rejected before anything is read
// or staged.
func (s *Server) runDetection(
	ctx context.Context,
	filename string,
	body io.Reader,
	progress pipeline.ProgressCallback,
) (*DetectResponse, error) {
	start := time.Now()

	kind, err := media.Classify(filename)
	if err != nil {
		jobsTotal.WithLabelValues(kind.String(), "rejected").Inc()
		return nil, failWith(http.StatusUnsupportedMediaType, err)
	}
	if s.pipeline == nil {
		return nil, failWith(http.StatusServiceUnavailable, errors.New("pipeline not initialized"))
	}

	var resp *DetectResponse
	switch kind {
	case media.KindImage:
		resp, err = s.detectImage(body)
	case media.KindVideo:
		resp, err = s.detectVideo(ctx, filename, body, progress)
	}

	elapsed := time.Since(start)
	jobDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	if err != nil {
		jobsTotal.WithLabelValues(kind.String(), "error").Inc()
		return nil, err
	}
	jobsTotal.WithLabelValues(kind.String(), "success").Inc()

	resp.Success = true
	resp.Kind = kind.String()
	resp.Processing.TotalMs = elapsed.Milliseconds()
	recordPlates(kind.String(), resp.Plates)
	return resp, nil
}

func (s *Server) detectImage(body io.Reader) (*DetectResponse, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, readError(err)
	}
	uploadSizeBytes.WithLabelValues("image").Observe(float64(len(data)))

	img, _, err := utils.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, failWith(http.StatusBadRequest, fmt.Errorf("invalid image: %w", err))
	}

	res, err := s.pipeline.ProcessImage(img)
	if err != nil {
		return nil, failWith(http.StatusUnprocessableEntity, fmt.Errorf("detection failed: %w", err))
	}

	png, err := utils.EncodePNG(res.Image)
	if err != nil {
		return nil, err
	}
	return &DetectResponse{
		Plates: res.Plates,
		Media:  &MediaPayload{ContentType: "image/png", Data: png},
	}, nil
}

func (s *Server) detectVideo(
	ctx context.Context,
	filename string,
	body io.Reader,
	progress pipeline.ProgressCallback,
) (*DetectResponse, error) {
	staged, err := s.pipeline.TempStore().Stage(body, filename)
	if err != nil {
		return nil, readError(err)
	}
	if fi, err := os.Stat(staged); err == nil {
		uploadSizeBytes.WithLabelValues("video").Observe(float64(fi.Size()))
	}

	res, err := s.pipeline.ProcessVideo(ctx, staged, progress)
	warnings := removeTemp(nil, staged)
	if err != nil {
		return nil, failWith(http.StatusInternalServerError, err)
	}

	data, err := os.ReadFile(res.OutputPath)
	warnings = removeTemp(warnings, res.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("read output video: %w", err)
	}

	framesProcessed.Add(float64(res.FramesWritten))
	frameErrors.Add(float64(res.FrameErrors))

	info := res.Info
	return &DetectResponse{
		Plates:      res.Plates,
		Frames:      res.FramesWritten,
		FrameErrors: res.FrameErrors,
		Truncated:   res.Truncated,
		Video:       &info,
		Warnings:    warnings,
		Media:       &MediaPayload{ContentType: media.ContentType(".mp4"), Data: data},
	}, nil
}

// removeTemp deletes a job file; a failure becomes a warning, never an error.
func removeTemp(warnings []string, path string) []string {
	if err := media.Remove(path); err != nil {
		tempCleanupFailures.Inc()
		return append(warnings, fmt.Sprintf("could not remove temp file %s: %v", filepath.Base(path), err))
	}
	return warnings
}

// readError maps upload read failures, reporting oversized bodies as 413.
func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return failWith(http.StatusRequestEntityTooLarge, fmt.Errorf("file too large (limit %d bytes)", tooLarge.Limit))
	}
	return failWith(http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
}

func recordPlates(kind string, plates []annotate.Plate) {
	platesPerJob.WithLabelValues(kind).Observe(float64(len(plates)))
	for _, p := range plates {
		if p.Text == recognizer.FailedText {
			ocrFailures.Inc()
		}
	}
}
