package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives frame progress for one video job.
// A total <= 0 means the frame count is unknown.
type ProgressCallback interface {
	// OnStart is called once the source is open.
	OnStart(total int)

	// OnProgress is called after each processed frame with current = frames done.
	OnProgress(current, total int)

	// OnComplete is called when the output has been finalized.
	OnComplete()

	// OnError is called when the job fails; no further calls follow.
	OnError(current int, err error)
}

// Fraction converts a progress pair into [0,1]. Unknown totals report 0.
func Fraction(current, total int) float64 {
	if total <= 0 || current <= 0 {
		return 0
	}
	if current >= total {
		return 1
	}
	return float64(current) / float64(total)
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(total int)              {}
func (NoOpProgressCallback) OnProgress(current, total int)  {}
func (NoOpProgressCallback) OnComplete()                    {}
func (NoOpProgressCallback) OnError(current int, err error) {}

// FuncProgressCallback forwards progress fractions to a function.
type FuncProgressCallback func(fraction float64, current, total int)

func (FuncProgressCallback) OnStart(total int) {}

func (f FuncProgressCallback) OnProgress(current, total int) { f(Fraction(current, total), current, total) }

func (FuncProgressCallback) OnComplete() {}

func (FuncProgressCallback) OnError(current int, err error) {}

// ConsoleProgressCallback draws a frame progress bar on a terminal.
type ConsoleProgressCallback struct {
	writer         io.Writer
	prefix         string
	width          int
	updateInterval time.Duration
	lastUpdate     time.Time
	startTime      time.Time
	mu             sync.Mutex
}

// NewConsoleProgressCallback creates a console progress bar writing to writer (stderr when nil).
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{
		writer:         writer,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
	}
}

// WithWidth sets the bar width in characters.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

// WithUpdateInterval sets the minimum time between redraws.
func (c *ConsoleProgressCallback) WithUpdateInterval(interval time.Duration) *ConsoleProgressCallback {
	c.updateInterval = interval
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	if total > 0 {
		_, _ = fmt.Fprintf(c.writer, "%s0/%d frames (0.0%%)\n", c.prefix, total)
		return
	}
	_, _ = fmt.Fprintf(c.writer, "%sframe count unknown\n", c.prefix)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && (total <= 0 || current < total) {
		return
	}
	c.lastUpdate = now

	if total <= 0 {
		_, _ = fmt.Fprintf(c.writer, "\r%s%d frames", c.prefix, current)
		return
	}

	frac := Fraction(current, total)
	filled := int(float64(c.width) * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, current, total, frac*100)

	if elapsed := now.Sub(c.startTime); elapsed > 0 && current > 0 {
		status += fmt.Sprintf(" %.1f fps", float64(current)/elapsed.Seconds())
		if current < total {
			eta := time.Duration(elapsed.Seconds() * float64(total-current) / float64(current) * float64(time.Second))
			status += fmt.Sprintf(" ETA: %v", eta.Round(time.Second))
		}
	}
	_, _ = fmt.Fprint(c.writer, status)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted in %v\n", c.prefix, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sFailed after frame %d: %v\n", c.prefix, current, err)
}

// LogProgressCallback logs progress with slog every interval frames.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	interval  int
	lastLog   int
	startTime time.Time
}

// NewLogProgressCallback creates a log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, interval: 50}
}

// WithInterval sets how often progress is logged, in frames.
func (l *LogProgressCallback) WithInterval(interval int) *LogProgressCallback {
	if interval > 0 {
		l.interval = interval
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Log(context.Background(), l.level, "Video processing started", "frames", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	if current-l.lastLog < l.interval && (total <= 0 || current < total) {
		return
	}
	l.lastLog = current
	l.logger.Log(context.Background(), l.level, "Video progress",
		"frame", current,
		"total", total,
		"percent", fmt.Sprintf("%.1f", Fraction(current, total)*100),
		"elapsed", time.Since(l.startTime).Round(time.Millisecond),
	)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "Video processing completed", "elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "Video processing failed", "frame", current, "error", err)
}

// MultiProgressCallback fans progress out to several callbacks.
type MultiProgressCallback []ProgressCallback

func (m MultiProgressCallback) OnStart(total int) {
	for _, cb := range m {
		cb.OnStart(total)
	}
}

func (m MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m {
		cb.OnProgress(current, total)
	}
}

func (m MultiProgressCallback) OnComplete() {
	for _, cb := range m {
		cb.OnComplete()
	}
}

func (m MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m {
		cb.OnError(current, err)
	}
}

// ThrottledProgressCallback drops progress updates that arrive faster than
// minInterval. The first and the final update always pass.
type ThrottledProgressCallback struct {
	wrapped     ProgressCallback
	minInterval time.Duration
	lastUpdate  time.Time
	mu          sync.Mutex
}

// NewThrottledProgressCallback wraps another callback.
func NewThrottledProgressCallback(wrapped ProgressCallback, minInterval time.Duration) *ThrottledProgressCallback {
	return &ThrottledProgressCallback{wrapped: wrapped, minInterval: minInterval}
}

func (t *ThrottledProgressCallback) OnStart(total int) { t.wrapped.OnStart(total) }

func (t *ThrottledProgressCallback) OnProgress(current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if current == total || t.lastUpdate.IsZero() || now.Sub(t.lastUpdate) >= t.minInterval {
		t.lastUpdate = now
		t.wrapped.OnProgress(current, total)
	}
}

func (t *ThrottledProgressCallback) OnComplete() { t.wrapped.OnComplete() }

func (t *ThrottledProgressCallback) OnError(current int, err error) { t.wrapped.OnError(current, err) }
