package mock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewYOLOOutputLayout(t *testing.T) {
	out := NewYOLOOutput(1, []Candidate{
		{CX: 10, CY: 20, W: 30, H: 40, Scores: []float32{0.9}},
		{CX: 1, CY: 2, W: 3, H: 4, Scores: []float32{1.5}},
	})
	assert.Equal(t, []int64{1, 5, 2}, out.Shape)
	assert.Equal(t, []float32{10, 1, 20, 2, 30, 3, 40, 4, 0.9, 1}, out.Data)
}

func TestTransposed(t *testing.T) {
	out := NewYOLOOutput(2, []Candidate{
		{CX: 10, CY: 20, W: 30, H: 40, Scores: []float32{0.1, 0.8}},
	}).Transposed()
	assert.Equal(t, []int64{1, 1, 6}, out.Shape)
	assert.Equal(t, []float32{10, 20, 30, 40, 0.1, 0.8}, out.Data)
}
