package embed

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/mds"

	"github.com/cytoflow-data/lineage.report/internal/knn"
)

// Defaults for the 2-D neighbour embedding.
const (
	DefaultNeighborK       = 15
	DefaultNeighborMinDist = 0.1

	// NeighborDims is fixed: the neighbour embedding is always 2-D.
	NeighborDims = 2
)

// NeighborEmbedding computes a 2-D embedding of X by building a k-nearest
// neighbour graph, measuring geodesic (graph shortest path) distances and
// projecting them with classical multidimensional scaling. minDist floors the
// edge weights, trading local fidelity against collapse of dense regions.
func NeighborEmbedding(X *mat.Dense, k int, minDist float64) (*mat.Dense, error) {
	n, _ := X.Dims()
	if minDist < 0 {
		return nil, fmt.Errorf("embed: minDist must be non-negative, got %v", minDist)
	}
	neighbors, dists, err := knn.Neighbors(X, k)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		for j, nb := range neighbors[i] {
			w := math.Max(dists[i][j], minDist)
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(i), simple.Node(nb), w))
		}
	}

	// Geodesic distance matrix. Disconnected pairs get a distance beyond the
	// largest finite geodesic so components stay apart without infinities.
	D := mat.NewSymDense(n, nil)
	maxFinite := 0.0
	for i := 0; i < n; i++ {
		shortest := path.DijkstraFrom(simple.Node(i), g)
		for j := i + 1; j < n; j++ {
			d := shortest.WeightTo(int64(j))
			D.SetSym(i, j, d)
			if !math.IsInf(d, 1) && d > maxFinite {
				maxFinite = d
			}
		}
	}
	if maxFinite == 0 {
		maxFinite = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.IsInf(D.At(i, j), 1) {
				D.SetSym(i, j, maxFinite*1.5)
			}
		}
	}

	var coords mat.Dense
	var eigenvals []float64
	positive, _ := mds.TorgersonScaling(&coords, eigenvals, D)
	if positive < NeighborDims {
		return nil, fmt.Errorf("embed: neighbour embedding needs %d positive eigenvalues, got %d", NeighborDims, positive)
	}

	out := mat.NewDense(n, NeighborDims, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < NeighborDims; j++ {
			out.Set(i, j, coords.At(i, j))
		}
	}
	return out, nil
}
