package cluster

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
		delta    float64
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0, 0.001},
		{"opposite vectors", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0, 0.001},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0, 0.001},
		{"similar vectors", []float32{1, 1, 0}, []float32{1, 0, 0}, 0.707, 0.01},
		{"parallel different length", []float32{4, 0, 0}, []float32{1, 0, 0}, 1.0, 0.001},
		{"empty vectors", []float32{}, []float32{}, 0.0, 0.001},
		{"different lengths", []float32{1, 0}, []float32{1, 0, 0}, 0.0, 0.001},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0, 0.001},
		{"both zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0.0, 0.001},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := CosineSimilarity(tc.a, tc.b)
			if result < tc.expected-tc.delta || result > tc.expected+tc.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f; want %f (±%f)",
					tc.a, tc.b, result, tc.expected, tc.delta)
			}
		})
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for range 200 {
		a := randomVector(r, 16)
		b := randomVector(r, 16)
		ab := CosineSimilarity(a, b)
		ba := CosineSimilarity(b, a)
		if math.Abs(ab-ba) > 1e-12 {
			t.Fatalf("not symmetric: %f vs %f", ab, ba)
		}
	}
}

func TestCosineSimilarityZeroNorm(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	zero := make([]float32, 8)
	for range 50 {
		v := randomVector(r, 8)
		if got := CosineSimilarity(zero, v); got != 0 {
			t.Fatalf("CosineSimilarity(zero, %v) = %f; want 0", v, got)
		}
		if got := CosineSimilarity(v, zero); got != 0 {
			t.Fatalf("CosineSimilarity(%v, zero) = %f; want 0", v, got)
		}
	}
}

func TestSimilarityWithNormsMatches(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 100 {
		a := randomVector(r, 12)
		b := randomVector(r, 12)
		want := CosineSimilarity(a, b)
		got := similarityWithNorms(a, b, norm(a), norm(b))
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("similarityWithNorms = %f; CosineSimilarity = %f", got, want)
		}
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"zero vector", []float32{0, 0}, []float32{0, 1}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineDistance(tc.a, tc.b)
			if math.Abs(got-tc.expected) > 1e-6 {
				t.Errorf("CosineDistance(%v, %v) = %f; want %f", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}
