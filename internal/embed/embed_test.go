package embed

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// noisyLine builds 40 points along a 1-D manifold embedded in 3-D.
func noisyLine(t *testing.T) *mat.Dense {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	X := mat.NewDense(40, 3, nil)
	for i := 0; i < 40; i++ {
		p := float64(i) / 4
		X.Set(i, 0, p+rng.NormFloat64()*0.05)
		X.Set(i, 1, 0.5*p+rng.NormFloat64()*0.05)
		X.Set(i, 2, rng.NormFloat64()*0.05)
	}
	return X
}

func TestDiffusionMapShape(t *testing.T) {
	X := noisyLine(t)
	coords, err := DiffusionMap(X, 7, 3)
	if err != nil {
		t.Fatalf("diffusion map: %v", err)
	}
	r, c := coords.Dims()
	if r != 40 || c != 3 {
		t.Fatalf("expected 40x3 coordinates, got %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(coords.At(i, j)) || math.IsInf(coords.At(i, j), 0) {
				t.Fatalf("coordinate (%d,%d) is not finite: %v", i, j, coords.At(i, j))
			}
		}
	}
}

func TestDiffusionMapRejectsTooFewComponents(t *testing.T) {
	X := noisyLine(t)
	if _, err := DiffusionMap(X, 7, 2); err == nil {
		t.Fatal("expected error for fewer than 3 components")
	}
}

func TestDiffusionMapDeterministic(t *testing.T) {
	X := noisyLine(t)
	a, err := DiffusionMap(X, 7, 3)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := DiffusionMap(X, 7, 3)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !mat.EqualApprox(a, b, 1e-12) {
		t.Fatal("diffusion map is not deterministic")
	}
}

func TestNeighborEmbeddingShape(t *testing.T) {
	X := noisyLine(t)
	coords, err := NeighborEmbedding(X, 7, 0.1)
	if err != nil {
		t.Fatalf("neighbor embedding: %v", err)
	}
	r, c := coords.Dims()
	if r != 40 || c != NeighborDims {
		t.Fatalf("expected 40x%d coordinates, got %dx%d", NeighborDims, r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(coords.At(i, j)) || math.IsInf(coords.At(i, j), 0) {
				t.Fatalf("coordinate (%d,%d) is not finite", i, j)
			}
		}
	}
}

func TestNeighborEmbeddingDisconnectedComponents(t *testing.T) {
	// Two far-apart blobs: the kNN graph is disconnected, which must still
	// produce a 2-D embedding rather than infinities.
	rng := rand.New(rand.NewSource(9))
	X := mat.NewDense(30, 2, nil)
	for i := 0; i < 15; i++ {
		X.Set(i, 0, rng.NormFloat64())
		X.Set(i, 1, rng.NormFloat64())
	}
	for i := 15; i < 30; i++ {
		X.Set(i, 0, 500+rng.NormFloat64())
		X.Set(i, 1, 500+rng.NormFloat64())
	}
	coords, err := NeighborEmbedding(X, 4, 0.1)
	if err != nil {
		t.Fatalf("neighbor embedding: %v", err)
	}
	r, c := coords.Dims()
	if r != 30 || c != 2 {
		t.Fatalf("expected 30x2, got %dx%d", r, c)
	}
}

func TestNeighborEmbeddingValidatesParams(t *testing.T) {
	X := noisyLine(t)
	if _, err := NeighborEmbedding(X, 7, -1); err == nil {
		t.Error("expected error for negative minDist")
	}
	if _, err := NeighborEmbedding(X, 0, 0.1); err == nil {
		t.Error("expected error for k=0")
	}
}
