// Package embed computes low-dimensional embeddings of the marker space: a
// diffusion-map embedding used for trajectory inference and an independent 2-D
// neighbour embedding used for visualization. The two are not expected to
// agree geometrically.
package embed

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cytoflow-data/lineage.report/internal/knn"
)

// MinDiffusionComponents is the minimum number of diffusion components the
// pipeline retains; trajectory inference expects at least three.
const MinDiffusionComponents = 3

// DefaultDiffusionK is the default neighbour count for the local kernel scale.
const DefaultDiffusionK = 15

// DiffusionMap computes the first nComponents diffusion components of X using
// a Gaussian kernel with local (kth-neighbour) scaling and symmetric
// normalization. The trivial constant eigenvector is discarded; components are
// ordered by decreasing eigenvalue and scaled by it.
func DiffusionMap(X *mat.Dense, k, nComponents int) (*mat.Dense, error) {
	n, _ := X.Dims()
	if nComponents < MinDiffusionComponents {
		return nil, fmt.Errorf("embed: at least %d diffusion components required, got %d", MinDiffusionComponents, nComponents)
	}
	if n <= nComponents+1 {
		return nil, fmt.Errorf("embed: %d components require more than %d cells", nComponents, nComponents+1)
	}
	neighbors, dists, err := knn.Neighbors(X, k)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	// Local kernel scale: distance to the kth neighbour. Duplicated points
	// would give a zero scale, so floor it.
	sigma := make([]float64, n)
	for i := range sigma {
		sigma[i] = dists[i][k-1]
		if sigma[i] == 0 {
			sigma[i] = 1e-12
		}
	}

	// Sparse symmetric affinities over the union of neighbourhoods.
	W := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j, nb := range neighbors[i] {
			d := dists[i][j]
			w := math.Exp(-d * d / (sigma[i] * sigma[nb]))
			if w > W.At(i, nb) {
				W.SetSym(i, nb, w)
			}
		}
	}

	// Symmetric normalization A = D^{-1/2} W D^{-1/2}.
	deg := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += W.At(i, j)
		}
		if s == 0 {
			return nil, fmt.Errorf("embed: cell %d is isolated in the affinity graph", i)
		}
		deg[i] = s
	}
	A := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := W.At(i, j) / math.Sqrt(deg[i]*deg[j])
			A.SetSym(i, j, v)
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(A, true); !ok {
		return nil, fmt.Errorf("embed: eigendecomposition failed")
	}
	vals := es.Values(nil) // ascending order
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// The largest eigenvalue carries the trivial stationary component; the
	// nComponents below it are the diffusion coordinates.
	coords := mat.NewDense(n, nComponents, nil)
	for m := 0; m < nComponents; m++ {
		col := n - 2 - m
		lambda := vals[col]
		for i := 0; i < n; i++ {
			coords.Set(i, m, lambda*vecs.At(i, col)/math.Sqrt(deg[i]))
		}
	}
	return coords, nil
}
