// Package mock builds synthetic detector head outputs for tests that run without a model.
package mock

// Candidate is one raw prediction in model input coordinates.
type Candidate struct {
	CX, CY, W, H float32
	Scores       []float32 // one score per class
}

// YOLOOutput is a synthetic head output with shape [1, 4+C, N] (channels first).
type YOLOOutput struct {
	Data  []float32
	Shape []int64
}

// NewYOLOOutput lays candidates out the way exported YOLOv8 models do: channel-major,
// one column per candidate. Missing class scores are zero-filled.
func NewYOLOOutput(numClasses int, candidates []Candidate) YOLOOutput {
	if numClasses < 1 {
		numClasses = 1
	}
	channels := 4 + numClasses
	n := len(candidates)
	data := make([]float32, channels*n)
	for i, c := range candidates {
		data[0*n+i] = c.CX
		data[1*n+i] = c.CY
		data[2*n+i] = c.W
		data[3*n+i] = c.H
		for k := 0; k < numClasses && k < len(c.Scores); k++ {
			data[(4+k)*n+i] = clamp01(c.Scores[k])
		}
	}
	return YOLOOutput{Data: data, Shape: []int64{1, int64(channels), int64(n)}}
}

// Transposed returns the same predictions in [1, N, 4+C] layout.
func (o YOLOOutput) Transposed() YOLOOutput {
	if len(o.Shape) != 3 {
		return o
	}
	channels, n := int(o.Shape[1]), int(o.Shape[2])
	data := make([]float32, len(o.Data))
	for c := range channels {
		for i := range n {
			data[i*channels+c] = o.Data[c*n+i]
		}
	}
	return YOLOOutput{Data: data, Shape: []int64{1, int64(n), int64(channels)}}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
