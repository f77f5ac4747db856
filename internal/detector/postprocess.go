package detector

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/platescan/internal/utils"
)

// headLayout describes how a YOLO head output is laid out in memory.
type headLayout struct {
	channels      int  // 4 box values + class scores
	count         int  // number of candidates
	channelsFirst bool // [channels, count] when true, [count, channels] otherwise
}

// parseHeadShape accepts [1, C, N], [1, N, C], [C, N] or [N, C] with C >= 5.
// Channels-first is assumed unless the first axis cannot hold channels or is
// clearly the candidate axis.
func parseHeadShape(shape []int64, dataLen int) (headLayout, error) {
	dims := shape
	if len(dims) == 3 {
		if dims[0] != 1 {
			return headLayout{}, fmt.Errorf("expected batch size 1, got %d", dims[0])
		}
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return headLayout{}, fmt.Errorf("unsupported output rank %d (shape %v)", len(shape), shape)
	}
	a, b := int(dims[0]), int(dims[1])
	if a < 0 || b < 0 || a*b != dataLen {
		return headLayout{}, fmt.Errorf("output data length %d does not match shape %v", dataLen, shape)
	}

	switch {
	case a >= 5 && (a <= b || b < 5):
		return headLayout{channels: a, count: b, channelsFirst: true}, nil
	case b >= 5:
		return headLayout{channels: b, count: a, channelsFirst: false}, nil
	case a == 0 || b == 0:
		return headLayout{channels: 5, count: 0, channelsFirst: true}, nil
	default:
		return headLayout{}, fmt.Errorf("output needs at least 5 channels (shape %v)", shape)
	}
}

func (l headLayout) at(data []float32, ch, idx int) float64 {
	if l.channelsFirst {
		return float64(data[ch*l.count+idx])
	}
	return float64(data[idx*l.channels+ch])
}

// decodeCandidates reads (cx, cy, w, h, scores...) rows and keeps those whose best
// class score reaches confThreshold.
func decodeCandidates(data []float32, shape []int64, confThreshold float64) ([]candidate, error) {
	layout, err := parseHeadShape(shape, len(data))
	if err != nil {
		return nil, err
	}

	out := make([]candidate, 0, 16)
	for i := range layout.count {
		best, cls := -1.0, 0
		for k := 4; k < layout.channels; k++ {
			if s := layout.at(data, k, i); s > best {
				best, cls = s, k-4
			}
		}
		if best < confThreshold {
			continue
		}
		w, h := layout.at(data, 2, i), layout.at(data, 3, i)
		if w <= 0 || h <= 0 {
			continue
		}
		box := utils.BoxFromCenter(layout.at(data, 0, i), layout.at(data, 1, i), w, h)
		out = append(out, candidate{Box: box, Score: clamp01(best), Class: cls})
	}
	return out, nil
}

// toDetections maps surviving candidates back through the letterbox and into the
// image bounds. Boxes that collapse after rounding and clamping are dropped.
func toDetections(cands []candidate, lb utils.Letterbox, bounds image.Rectangle) []Detection {
	dets := make([]Detection, 0, len(cands))
	for _, c := range cands {
		b := lb.Unmap(c.Box)
		b.MinX += float64(bounds.Min.X)
		b.MaxX += float64(bounds.Min.X)
		b.MinY += float64(bounds.Min.Y)
		b.MaxY += float64(bounds.Min.Y)

		rect := b.ToRect(bounds)
		if rect.Min.X >= rect.Max.X || rect.Min.Y >= rect.Max.Y {
			continue
		}
		dets = append(dets, Detection{Box: rect, Confidence: c.Score, Class: c.Class})
	}
	return dets
}

// postprocess turns a raw head output into final detections.
func postprocess(data []float32, shape []int64, lb utils.Letterbox, bounds image.Rectangle, cfg Config,
) ([]Detection, error) {
	cands, err := decodeCandidates(data, shape, cfg.ConfThreshold)
	if err != nil {
		return nil, err
	}
	kept := NonMaxSuppression(cands, cfg.NMSThreshold)
	return toDetections(kept, lb, bounds), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
