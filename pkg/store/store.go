// Package store holds the reference phrase corpus behind nearest-neighbour search.
package store

import "math"

// DefaultK is the number of neighbours returned when the caller does not ask for a count.
const DefaultK = 30

// SimilarityFromDistance converts a cosine distance in [0,2] into a similarity where 1 is
// identical direction.
func SimilarityFromDistance(distance float64) float64 {
	return 1 - distance
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector or
// the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
