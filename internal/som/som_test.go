package som

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/cytoflow-data/lineage.report/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// threeBlobs builds 3 well-separated Gaussian blobs of 10 cells each in 2D.
func threeBlobs(t *testing.T) *mat.Dense {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	centers := [][2]float64{{0, 0}, {20, 0}, {0, 20}}
	X := mat.NewDense(30, 2, nil)
	for b, c := range centers {
		for i := 0; i < 10; i++ {
			row := b*10 + i
			X.Set(row, 0, c[0]+rng.NormFloat64()*0.5)
			X.Set(row, 1, c[1]+rng.NormFloat64()*0.5)
		}
	}
	return X
}

func TestFitDeterministicWithFixedSeed(t *testing.T) {
	X := threeBlobs(t)
	p := Params{GridRows: 4, GridCols: 4, Epochs: 5, Metaclusters: 3, Seed: 99}

	first, err := New(p).Fit(X)
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}
	second, err := New(p).Fit(X)
	if err != nil {
		t.Fatalf("second fit: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("row %d: labels differ across identical runs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestFitReachesRequestedMetaclusterCount(t *testing.T) {
	X := threeBlobs(t)
	for _, seed := range []int64{1, 99} {
		p := Params{GridRows: 4, GridCols: 4, Epochs: 5, Metaclusters: 3, Seed: seed}
		labels, err := New(p).Fit(X)
		if err != nil {
			t.Fatalf("fit (seed %d): %v", seed, err)
		}
		if len(labels) != 30 {
			t.Fatalf("expected 30 labels, got %d", len(labels))
		}
		distinct := map[string]bool{}
		for _, l := range labels {
			distinct[l] = true
		}
		if len(distinct) != 3 {
			t.Errorf("seed %d: expected 3 metaclusters, got %d: %v", seed, len(distinct), distinct)
		}
	}
}

func TestFitSeparatesBlobs(t *testing.T) {
	X := threeBlobs(t)
	p := Params{GridRows: 4, GridCols: 4, Epochs: 5, Metaclusters: 3, Seed: 1}
	labels, err := New(p).Fit(X)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	// Cells within one blob should share a label; distinct blobs should not.
	for b := 0; b < 3; b++ {
		first := labels[b*10]
		for i := 1; i < 10; i++ {
			if labels[b*10+i] != first {
				t.Errorf("blob %d not uniformly labelled: %v", b, labels[b*10:b*10+10])
				break
			}
		}
	}
	if labels[0] == labels[10] || labels[0] == labels[20] || labels[10] == labels[20] {
		t.Errorf("distinct blobs share a label: %q %q %q", labels[0], labels[10], labels[20])
	}
}

func TestFitValidatesParams(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	cases := []Params{
		{GridRows: 0, GridCols: 4, Epochs: 1, Metaclusters: 1},
		{GridRows: 4, GridCols: 4, Epochs: 0, Metaclusters: 1},
		{GridRows: 4, GridCols: 4, Epochs: 1, Metaclusters: 0},
	}
	for _, p := range cases {
		if _, err := New(p).Fit(X); err == nil {
			t.Errorf("params %+v: expected error", p)
		}
	}
}

func TestFitMoreMetaclustersThanCells(t *testing.T) {
	// Requesting more metaclusters than occupied nodes degrades gracefully.
	X := mat.NewDense(3, 1, []float64{0, 10, 20})
	p := Params{GridRows: 2, GridCols: 2, Epochs: 2, Metaclusters: 10, Seed: 5}
	labels, err := New(p).Fit(X)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(labels) != 3 {
		t.Fatalf("expected 3 labels, got %d", len(labels))
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.GridRows != DefaultGridRows || p.GridCols != DefaultGridCols {
		t.Errorf("unexpected default grid %dx%d", p.GridRows, p.GridCols)
	}
	if p.Metaclusters != DefaultMetaclusters {
		t.Errorf("unexpected default metaclusters %d", p.Metaclusters)
	}
}
