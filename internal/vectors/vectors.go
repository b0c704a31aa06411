// Package vectors holds the small amount of vector math shared by the
// embedder and the dashboard deduplicator.
package vectors

import "math"

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left
// untouched.
func Normalize(v []float32) {
	norm := Norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// Cosine returns the cosine similarity of two unit-norm vectors (their inner
// product).
func Cosine(a, b []float32) float64 {
	return Dot(a, b)
}
