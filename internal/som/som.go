// Package som implements self-organizing-map clustering of cells with
// hierarchical metaclustering of the trained map nodes.
package som

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/cytoflow-data/lineage.report/internal/monitoring"
)

// Defaults for SOM training and metaclustering.
const (
	DefaultGridRows     = 10
	DefaultGridCols     = 10
	DefaultEpochs       = 10
	DefaultMetaclusters = 14

	initialLearningRate = 0.5
	finalLearningRate   = 0.01
)

// Params controls SOM training. Results are deterministic for a fixed seed
// and sensitive to both the seed and the marker subset used.
type Params struct {
	GridRows     int
	GridCols     int
	Epochs       int
	Metaclusters int
	Seed         int64
}

// DefaultParams returns the standard 10x10 map with 14 metaclusters.
func DefaultParams() Params {
	return Params{
		GridRows:     DefaultGridRows,
		GridCols:     DefaultGridCols,
		Epochs:       DefaultEpochs,
		Metaclusters: DefaultMetaclusters,
		Seed:         1,
	}
}

// Clusterer assigns one categorical label per row of a marker matrix.
type Clusterer interface {
	Fit(X *mat.Dense) ([]string, error)
}

// SOM is a seeded self-organizing-map clusterer.
type SOM struct {
	params Params
}

// New creates a SOM clusterer with the given parameters.
func New(p Params) *SOM {
	return &SOM{params: p}
}

// Params returns the current parameters.
func (s *SOM) Params() Params { return s.params }

// Fit trains the map on X, collapses trained nodes into metaclusters and
// returns one label per row, of the form "SOM-<k>". Metacluster numbering is
// stable: clusters are numbered by their smallest member node index.
func (s *SOM) Fit(X *mat.Dense) ([]string, error) {
	p := s.params
	n, d := X.Dims()
	if n == 0 {
		return nil, fmt.Errorf("som: empty input")
	}
	if p.GridRows < 1 || p.GridCols < 1 {
		return nil, fmt.Errorf("som: grid must be at least 1x1, got %dx%d", p.GridRows, p.GridCols)
	}
	if p.Epochs < 1 {
		return nil, fmt.Errorf("som: epochs must be at least 1, got %d", p.Epochs)
	}
	if p.Metaclusters < 1 {
		return nil, fmt.Errorf("som: metacluster count must be at least 1, got %d", p.Metaclusters)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	nodes := p.GridRows * p.GridCols

	// Initialize codebooks from randomly sampled cells.
	codebook := make([][]float64, nodes)
	for i := range codebook {
		codebook[i] = make([]float64, d)
		copy(codebook[i], X.RawRowView(rng.Intn(n)))
	}

	// Online training with a linearly decaying learning rate and a Gaussian
	// neighborhood whose radius shrinks from half the grid to one cell.
	sigma0 := math.Max(float64(p.GridRows), float64(p.GridCols)) / 2
	totalSteps := p.Epochs * n
	step := 0
	for epoch := 0; epoch < p.Epochs; epoch++ {
		for _, i := range rng.Perm(n) {
			t := float64(step) / float64(totalSteps)
			lr := initialLearningRate + (finalLearningRate-initialLearningRate)*t
			sigma := math.Max(1, sigma0*(1-t))

			cell := X.RawRowView(i)
			bmu := s.bestMatchingUnit(codebook, cell)
			br, bc := bmu/p.GridCols, bmu%p.GridCols
			for node := range codebook {
				nr, nc := node/p.GridCols, node%p.GridCols
				gridDist2 := float64((nr-br)*(nr-br) + (nc-bc)*(nc-bc))
				h := math.Exp(-gridDist2 / (2 * sigma * sigma))
				if h < 1e-4 {
					continue
				}
				w := codebook[node]
				for j := range w {
					w[j] += lr * h * (cell[j] - w[j])
				}
			}
			step++
		}
	}

	// Final node assignment per cell.
	assignment := make([]int, n)
	occupied := make(map[int]bool)
	for i := 0; i < n; i++ {
		bmu := s.bestMatchingUnit(codebook, X.RawRowView(i))
		assignment[i] = bmu
		occupied[bmu] = true
	}

	// Collapse occupied nodes into metaclusters. Requesting more metaclusters
	// than occupied nodes degrades to one metacluster per occupied node.
	occupiedNodes := sortedKeys(occupied)
	target := p.Metaclusters
	if target > len(occupiedNodes) {
		monitoring.Logf("som: %d metaclusters requested but only %d occupied nodes; using %d", target, len(occupiedNodes), len(occupiedNodes))
		target = len(occupiedNodes)
	}
	nodeMeta := metacluster(codebook, occupiedNodes, target)

	labels := make([]string, n)
	for i, node := range assignment {
		labels[i] = fmt.Sprintf("SOM-%d", nodeMeta[node]+1)
	}
	return labels, nil
}

func (s *SOM) bestMatchingUnit(codebook [][]float64, cell []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for node, w := range codebook {
		var dist float64
		for j := range w {
			dv := cell[j] - w[j]
			dist += dv * dv
		}
		if dist < bestDist {
			bestDist = dist
			best = node
		}
	}
	return best
}

// metacluster groups the given nodes into target clusters by average-linkage
// agglomeration over their codebook vectors. It returns a map from node index
// to metacluster index, with metaclusters numbered by smallest member node.
func metacluster(codebook [][]float64, nodes []int, target int) map[int]int {
	clusters := make([][]int, len(nodes))
	for i, node := range nodes {
		clusters[i] = []int{node}
	}

	for len(clusters) > target {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := averageLinkage(codebook, clusters[i], clusters[j])
				if d < best {
					best = d
					bi, bj = i, j
				}
			}
		}
		merged := append(append([]int{}, clusters[bi]...), clusters[bj]...)
		clusters[bi] = merged
		clusters = append(clusters[:bj], clusters[bj+1:]...)
	}

	// Stable numbering: order metaclusters by their smallest node index.
	mins := make([]int, len(clusters))
	for i, c := range clusters {
		m := c[0]
		for _, node := range c {
			if node < m {
				m = node
			}
		}
		mins[i] = m
	}
	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if mins[order[j]] < mins[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	nodeMeta := make(map[int]int)
	for rank, ci := range order {
		for _, node := range clusters[ci] {
			nodeMeta[node] = rank
		}
	}
	return nodeMeta
}

func averageLinkage(codebook [][]float64, a, b []int) float64 {
	var sum float64
	for _, i := range a {
		for _, j := range b {
			var d float64
			for k := range codebook[i] {
				dv := codebook[i][k] - codebook[j][k]
				d += dv * dv
			}
			sum += math.Sqrt(d)
		}
	}
	return sum / float64(len(a)*len(b))
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Verify at compile time that *SOM implements Clusterer.
var _ Clusterer = (*SOM)(nil)
