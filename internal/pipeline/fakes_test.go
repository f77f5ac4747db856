package pipeline

import (
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/MeKo-Tech/platescan/internal/detector"
	"github.com/stretchr/testify/require"
)

// scriptedDetector returns one plate per call and fails on the listed call numbers.
type scriptedDetector struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (d *scriptedDetector) Detect(img image.Image) ([]detector.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.calls
	d.calls++
	if d.failOn[n] {
		return nil, errors.New("inference failed")
	}
	b := img.Bounds()
	return []detector.Detection{{
		Box:        image.Rect(b.Min.X+2, b.Min.Y+2, b.Min.X+12, b.Min.Y+8),
		Confidence: 0.9,
	}}, nil
}

type constRecognizer string

func (c constRecognizer) Recognize(image.Image) string { return string(c) }

// memSource serves frames from memory and fails reads from failAt onwards.
type memSource struct {
	info   VideoInfo
	frames int
	failAt int // -1 for never
	next   int
	closed bool
}

func (s *memSource) Info() VideoInfo { return s.info }

func (s *memSource) Read() (image.Image, error) {
	if s.failAt >= 0 && s.next >= s.failAt {
		return nil, errors.New("corrupt packet")
	}
	if s.next >= s.frames {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, s.info.Width, s.info.Height))
	img.Set(0, 0, color.RGBA{R: uint8(s.next), A: 255}) //nolint:gosec // frame marker
	s.next++
	return img, nil
}

func (s *memSource) Close() error {
	s.closed = true
	return nil
}

// memSink records written frames and can fail on a given write.
type memSink struct {
	path     string
	written  []image.Image
	failAt   int // -1 for never
	closed   bool
	closeErr error
}

func (s *memSink) Write(frame image.Image) error {
	if s.failAt >= 0 && len(s.written) == s.failAt {
		return errors.New("disk full")
	}
	s.written = append(s.written, frame)
	return os.WriteFile(s.path, []byte{byte(len(s.written))}, 0o600)
}

func (s *memSink) Close() error {
	s.closed = true
	return s.closeErr
}

type memOpener struct {
	src      *memSource
	sink     *memSink
	openErr  error
	sinkErr  error
	codec    string
	sinkInfo VideoInfo
}

func (o *memOpener) OpenSource(string) (FrameSource, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.src, nil
}

func (o *memOpener) CreateSink(path, codec string, info VideoInfo) (FrameSink, error) {
	if o.sinkErr != nil {
		return nil, o.sinkErr
	}
	o.codec = codec
	o.sinkInfo = info
	o.sink.path = path
	return o.sink, nil
}

func newOpener(frames, reported, failReadAt, failWriteAt int) *memOpener {
	return &memOpener{
		src: &memSource{
			info:   VideoInfo{Width: 32, Height: 24, FPS: 25, FrameCount: reported},
			frames: frames,
			failAt: failReadAt,
		},
		sink: &memSink{failAt: failWriteAt},
	}
}

// recordingProgress keeps every callback for assertions.
type recordingProgress struct {
	started  int
	total    int
	updates  [][2]int
	complete bool
	errs     []error
}

func (r *recordingProgress) OnStart(total int) {
	r.started++
	r.total = total
}

func (r *recordingProgress) OnProgress(current, total int) {
	r.updates = append(r.updates, [2]int{current, total})
}

func (r *recordingProgress) OnComplete() { r.complete = true }

func (r *recordingProgress) OnError(_ int, err error) { r.errs = append(r.errs, err) }

func (r *recordingProgress) fractions() []float64 {
	out := make([]float64, len(r.updates))
	for i, u := range r.updates {
		out[i] = Fraction(u[0], u[1])
	}
	return out
}

func buildTestPipeline(t *testing.T, det *scriptedDetector, opener VideoOpener) *Pipeline {
	t.Helper()
	if det == nil {
		det = &scriptedDetector{}
	}
	p, err := NewBuilder().
		WithTempDir(t.TempDir()).
		WithDetector(det).
		WithRecognizer(constRecognizer("AB 123")).
		WithVideoOpener(opener).
		Build()
	require.NoError(t, err)
	return p
}
