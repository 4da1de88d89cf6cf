package embeddings_test

import (
	"math"
	"testing"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
)

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := embeddings.Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRank(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},   // orthogonal
		{1, 0.1}, // close
		{1, 0},   // exact
		{0, 1},   // tie with 0
	}
	got := embeddings.Rank(query, candidates)
	wantOrder := []int{2, 1, 0, 3}
	for i, idx := range wantOrder {
		if got[i].Index != idx {
			t.Fatalf("rank %d = candidate %d, want %d (all: %+v)", i, got[i].Index, idx, got)
		}
	}
}
