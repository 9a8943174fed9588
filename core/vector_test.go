package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := NormalizeVector([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)

	assert.Empty(t, NormalizeVector(nil))
}

func TestNormalizeVectorDoesNotMutateInput(t *testing.T) {
	in := []float32{3, 4}
	_ = NormalizeVector(in)
	assert.Equal(t, []float32{3, 4}, in)
}

func TestMeanPool(t *testing.T) {
	got := MeanPool([][]float32{{1, 2}, {3, 4}, {9}})
	assert.Equal(t, []float32{2, 3}, got)
	assert.Nil(t, MeanPool(nil))

	norm := NormalizeVector(MeanPool([][]float32{{1, 0}, {0, 1}}))
	assert.InDelta(t, 1.0, math.Hypot(float64(norm[0]), float64(norm[1])), 1e-6)
}
