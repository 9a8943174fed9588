package core

import (
	"github.com/viterin/vek/vek32"
)

// CosineSimilarity returns dot(a,b) / (|a|*|b|).
// It is 0 when either vector has zero norm. Both vectors must have the same length.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := vek32.Norm(a)
	nb := vek32.Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return vek32.Dot(a, b) / (na * nb)
}

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	result := make([]float32, len(v))
	norm := vek32.Norm(v)
	if norm == 0 {
		return result
	}
	copy(result, v)
	vek32.DivNumber_Inplace(result, norm)
	return result
}

// MeanPool averages equally sized vectors element-wise.
// Vectors whose length differs from the first are ignored.
func MeanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float32, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		vek32.Add_Inplace(sum, v)
		n++
	}
	if n > 0 {
		vek32.DivNumber_Inplace(sum, float32(n))
	}
	return sum
}
