package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/platescan/internal/annotate"
	"github.com/MeKo-Tech/platescan/internal/media"
)

// VideoInfo describes an opened video stream.
type VideoInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"` // <= 0 when the container does not say
}

// FrameSource yields decoded frames. Read returns io.EOF after the last frame.
type FrameSource interface {
	Info() VideoInfo
	Read() (image.Image, error)
	Close() error
}

// FrameSink encodes frames into an output file.
type FrameSink interface {
	Write(frame image.Image) error
	Close() error
}

// VideoOpener opens sources and creates sinks for a video backend.
type VideoOpener interface {
	OpenSource(path string) (FrameSource, error)
	CreateSink(path, codec string, info VideoInfo) (FrameSink, error)
}

// Video job failures.
var (
	ErrOpenSource = errors.New("cannot open video")
	ErrCreateSink = errors.New("cannot create output video")
	ErrWriteFrame = errors.New("cannot write frame")
)

// VideoState is the lifecycle stage of a video job.
type VideoState int

const (
	StateOpening VideoState = iota
	StateStreaming
	StateClosed
	StateFailed
)

func (s VideoState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("VideoState(%d)", int(s))
	}
}

// VideoResult is the outcome of a completed video job.
type VideoResult struct {
	OutputPath    string
	Info          VideoInfo
	FramesWritten int
	FrameErrors   int  // frames written unannotated because detection failed
	Truncated     bool // the source ended before its reported frame count
	Plates        []annotate.Plate
	Duration      time.Duration
}

// videoJob holds the handles of one run so every exit path can release them.
type videoJob struct {
	state   VideoState
	src     FrameSource
	sink    FrameSink
	outPath string
}

func (j *videoJob) transition(to VideoState) {
	slog.Debug("Video job state", "from", j.state.String(), "to", to.String())
	j.state = to
}

// release closes open handles. The first close error is returned.
func (j *videoJob) release() error {
	var first error
	if j.sink != nil {
		if err := j.sink.Close(); err != nil {
			first = fmt.Errorf("close output: %w", err)
		}
		j.sink = nil
	}
	if j.src != nil {
		if err := j.src.Close(); err != nil && first == nil {
			first = fmt.Errorf("close source: %w", err)
		}
		j.src = nil
	}
	return first
}

// fail moves the job to FAILED, releases handles and removes the partial output.
func (j *videoJob) fail(err error) error {
	j.transition(StateFailed)
	if cerr := j.release(); cerr != nil {
		slog.Warn("Error releasing video handles", "error", cerr)
	}
	_ = media.Remove(j.outPath)
	return err
}

// ProcessVideo annotates every frame of srcPath into a new MP4 in the temp dir.
// A frame read failure ends the stream early and still yields a valid output;
// a per-frame detection failure writes that frame unannotated and continues.
// The caller owns the returned OutputPath.
func (p *Pipeline) ProcessVideo(ctx context.Context, srcPath string, progress ProgressCallback) (*VideoResult, error) {
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	if p.opener == nil {
		return nil, ErrNoVideoBackend
	}
	start := time.Now()
	job := &videoJob{state: StateOpening}

	src, err := p.opener.OpenSource(srcPath)
	if err != nil {
		err = job.fail(fmt.Errorf("%w %s: %w", ErrOpenSource, srcPath, err))
		progress.OnError(0, err)
		return nil, err
	}
	job.src = src
	info := src.Info()

	outPath, err := p.temp.Reserve(".mp4")
	if err != nil {
		err = job.fail(err)
		progress.OnError(0, err)
		return nil, err
	}
	job.outPath = outPath

	sink, err := p.opener.CreateSink(outPath, p.cfg.Video.Codec, info)
	if err != nil {
		err = job.fail(fmt.Errorf("%w: %w", ErrCreateSink, err))
		progress.OnError(0, err)
		return nil, err
	}
	job.sink = sink

	job.transition(StateStreaming)
	total := info.FrameCount
	progress.OnStart(total)
	slog.Info("Video processing started", "source", srcPath, "frames", total,
		"width", info.Width, "height", info.Height, "fps", info.FPS)

	res := &VideoResult{OutputPath: outPath, Info: info, Plates: []annotate.Plate{}}
	for i := 0; total <= 0 || i < total; i++ {
		if err := ctx.Err(); err != nil {
			err = job.fail(fmt.Errorf("video processing cancelled at frame %d: %w", i, err))
			progress.OnError(i, err)
			return nil, err
		}

		frame, err := job.src.Read()
		if err == nil && frame == nil {
			err = errors.New("empty frame")
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("Frame read failed, ending stream", "frame", i, "error", err)
			}
			res.Truncated = total > 0
			break
		}

		out, plates, aerr := p.annotator.Annotate(frame)
		if aerr != nil {
			res.FrameErrors++
			slog.Warn("Frame annotation failed, writing frame unannotated", "frame", i, "error", aerr)
		}

		if err := job.sink.Write(out); err != nil {
			err = job.fail(fmt.Errorf("%w %d: %w", ErrWriteFrame, i, err))
			progress.OnError(i, err)
			return nil, err
		}
		res.FramesWritten++

		for _, pl := range plates {
			pl.Frame = i
			res.Plates = append(res.Plates, pl)
		}

		if total > 0 {
			progress.OnProgress(i+1, total)
		}
	}

	if err := job.release(); err != nil {
		err = job.fail(err)
		progress.OnError(res.FramesWritten, err)
		return nil, err
	}
	job.transition(StateClosed)

	if total <= 0 {
		progress.OnProgress(res.FramesWritten, res.FramesWritten)
	}
	progress.OnComplete()

	res.Duration = time.Since(start)
	slog.Info("Video processing finished",
		"frames_written", res.FramesWritten,
		"frame_errors", res.FrameErrors,
		"plates", len(res.Plates),
		"truncated", res.Truncated,
		"duration", res.Duration.Round(time.Millisecond))
	return res, nil
}
