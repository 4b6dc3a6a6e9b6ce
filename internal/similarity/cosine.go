// Package similarity provides cosine similarity over embedding vectors and
// deterministic top-k selection for candidate retrieval.
package similarity

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Cosine calculates the cosine similarity between two vectors, in [-1, 1].
// Mismatched or empty vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	aFloat64 := make([]float64, len(a))
	bFloat64 := make([]float64, len(b))
	for i := range a {
		aFloat64[i] = float64(a[i])
		bFloat64[i] = float64(b[i])
	}

	dot := floats.Dot(aFloat64, bFloat64)
	magA := math.Sqrt(floats.Dot(aFloat64, aFloat64))
	magB := math.Sqrt(floats.Dot(bFloat64, bFloat64))

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (magA * magB)
}

// Normalize scales a vector to unit length in place, so that cosine
// similarity reduces to a dot product. Zero vectors are left untouched.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Scored pairs an item id with its similarity to a query.
type Scored struct {
	ID         int64
	Similarity float64
}

// TopK returns the k highest-scoring items, similarity descending, ties
// broken by smaller id so repeated calls return byte-identical order.
// k <= 0 yields an empty result.
func TopK(items []Scored, k int) []Scored {
	if k <= 0 || len(items) == 0 {
		return nil
	}

	sorted := make([]Scored, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Similarity != sorted[j].Similarity {
			return sorted[i].Similarity > sorted[j].Similarity
		}
		return sorted[i].ID < sorted[j].ID
	})

	if k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}
