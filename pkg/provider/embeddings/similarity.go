package embeddings

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different length or with zero magnitude score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Scored pairs a candidate index with its similarity to a query.
type Scored struct {
	Index int
	Score float64
}

// Rank scores every candidate against query and returns them best first.
// Ties keep their input order.
func Rank(query []float32, candidates [][]float32) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Index: i, Score: Cosine(query, c)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
