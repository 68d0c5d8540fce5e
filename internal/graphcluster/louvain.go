// Package graphcluster assigns per-cell labels by community detection over a
// k-nearest-neighbour graph. Unlike the SOM clusterer no cluster count is
// requested; the number of communities is emergent, with larger k producing
// fewer, larger communities.
package graphcluster

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"

	"github.com/cytoflow-data/lineage.report/internal/knn"
)

// Defaults for neighbour-graph construction and modularity optimization.
const (
	DefaultK          = 15
	DefaultResolution = 1.0
)

// Params controls graph construction and Louvain community detection.
type Params struct {
	K          int
	Resolution float64
	Seed       int64
}

// DefaultParams returns the standard neighbour-graph parameters.
func DefaultParams() Params {
	return Params{K: DefaultK, Resolution: DefaultResolution, Seed: 1}
}

// Louvain is a seeded kNN-graph community clusterer.
type Louvain struct {
	params Params
}

// New creates a Louvain clusterer with the given parameters.
func New(p Params) *Louvain {
	return &Louvain{params: p}
}

// Params returns the current parameters.
func (l *Louvain) Params() Params { return l.params }

// Fit builds the kNN graph over the rows of X and returns one community label
// per row, of the form "GC-<k>". Communities are numbered by their smallest
// member index so numbering is stable for a fixed seed.
func (l *Louvain) Fit(X *mat.Dense) ([]string, error) {
	p := l.params
	n, _ := X.Dims()
	if p.Resolution <= 0 {
		return nil, fmt.Errorf("graphcluster: resolution must be positive, got %v", p.Resolution)
	}
	neighbors, dists, err := knn.Neighbors(X, p.K)
	if err != nil {
		return nil, fmt.Errorf("graphcluster: %w", err)
	}

	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		for j, nb := range neighbors[i] {
			if nb == i {
				continue
			}
			// Similarity weighting keeps near neighbours influential without
			// letting zero distances blow up.
			w := 1.0 / (1.0 + dists[i][j])
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(i), simple.Node(nb), w))
		}
	}

	src := rand.NewPCG(uint64(p.Seed), uint64(p.Seed)+1)
	reduced := community.Modularize(g, p.Resolution, src)
	comms := reduced.Communities()

	// Stable numbering: communities ordered by smallest member node ID.
	type comm struct {
		min     int64
		members []int64
	}
	ordered := make([]comm, 0, len(comms))
	for _, nodes := range comms {
		c := comm{min: nodes[0].ID()}
		for _, node := range nodes {
			id := node.ID()
			if id < c.min {
				c.min = id
			}
			c.members = append(c.members, id)
		}
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].min < ordered[b].min })

	labels := make([]string, n)
	for rank, c := range ordered {
		for _, id := range c.members {
			labels[id] = fmt.Sprintf("GC-%d", rank+1)
		}
	}
	return labels, nil
}

// Verify at compile time that Fit satisfies the SOM package's Clusterer shape;
// both clusterers are interchangeable in the pipeline.
var _ interface {
	Fit(*mat.Dense) ([]string, error)
} = (*Louvain)(nil)
