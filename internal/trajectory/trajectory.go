// Package trajectory infers pseudotime lineages over coarse cluster labels.
//
// Inference runs in three stages: lineage discovery (a minimum spanning tree
// over cluster centroids, rooted at a designated cluster), curve fitting (a
// smooth curve per lineage through its centroids, approximated by a fixed
// number of interpolation points) and projection (every cell of a lineage's
// clusters is projected onto the curve; all other cells get an undefined
// pseudotime, never zero or an extrapolation).
package trajectory

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/prim_kruskal"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// ErrRootMissing is returned when the designated root cluster does not occur
// in the label column. Lineage discovery cannot anchor and the whole
// trajectory stage aborts with no partial output.
var ErrRootMissing = errors.New("trajectory: root cluster not present in labels")

// DefaultCurvePoints is the default number of interpolation points per lineage
// curve. More points track the data more closely at higher cost.
const DefaultCurvePoints = 150

// Edge weights in the centroid graph are distances scaled to integer
// micro-units, since the MST graph carries integral weights.
const weightScale = 1e6

// Params configures trajectory inference.
type Params struct {
	Root        string
	CurvePoints int
}

// Result holds the discovered lineages, their fitted curves and the per-cell
// pseudotime values. Pseudotime[k][i] is cell i's position on lineage k, or
// NaN if cell i's cluster is not on that lineage's path.
type Result struct {
	Lineages     [][]string
	CurveSamples []*mat.Dense
	Pseudotime   [][]float64
}

// Infer discovers lineages from per-cell coordinates and coarse cluster
// labels. coords is row-aligned with clusters; its columns are typically the
// leading diffusion components.
func Infer(coords *mat.Dense, clusters []string, p Params) (*Result, error) {
	n, dim := coords.Dims()
	if len(clusters) != n {
		return nil, fmt.Errorf("trajectory: %d labels for %d cells", len(clusters), n)
	}
	if p.Root == "" {
		return nil, fmt.Errorf("trajectory: no root cluster designated")
	}
	if p.CurvePoints <= 0 {
		p.CurvePoints = DefaultCurvePoints
	}

	centroids, names := clusterCentroids(coords, clusters)
	if _, ok := centroids[p.Root]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrRootMissing, p.Root)
	}

	lineages, err := discoverLineages(centroids, names, p.Root)
	if err != nil {
		return nil, err
	}

	res := &Result{Lineages: lineages}
	for _, lineage := range lineages {
		curve, cum, err := fitCurve(centroids, lineage, dim, p.CurvePoints)
		if err != nil {
			return nil, err
		}
		res.CurveSamples = append(res.CurveSamples, curve)

		onPath := make(map[string]bool, len(lineage))
		for _, c := range lineage {
			onPath[c] = true
		}
		pt := make([]float64, n)
		for i := range pt {
			if !onPath[clusters[i]] {
				pt[i] = math.NaN()
				continue
			}
			pt[i] = project(coords.RawRowView(i), curve, cum)
		}
		res.Pseudotime = append(res.Pseudotime, pt)
	}
	return res, nil
}

// clusterCentroids returns per-cluster mean coordinates and the sorted list of
// cluster names.
func clusterCentroids(coords *mat.Dense, clusters []string) (map[string][]float64, []string) {
	n, dim := coords.Dims()
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for i := 0; i < n; i++ {
		label := clusters[i]
		if sums[label] == nil {
			sums[label] = make([]float64, dim)
		}
		row := coords.RawRowView(i)
		for j := range row {
			sums[label][j] += row[j]
		}
		counts[label]++
	}
	names := make([]string, 0, len(sums))
	for label, s := range sums {
		for j := range s {
			s[j] /= float64(counts[label])
		}
		names = append(names, label)
	}
	sort.Strings(names)
	return sums, names
}

// discoverLineages builds the centroid MST and enumerates root-to-leaf paths.
// A single-cluster labeling yields one degenerate lineage holding the root.
func discoverLineages(centroids map[string][]float64, names []string, root string) ([][]string, error) {
	if len(names) == 1 {
		return [][]string{{root}}, nil
	}

	g := core.NewGraph(core.WithWeighted())
	for _, name := range names {
		if err := g.AddVertex(name); err != nil {
			return nil, fmt.Errorf("trajectory: add vertex %q: %w", name, err)
		}
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			w := int64(math.Round(euclidean(centroids[names[i]], centroids[names[j]]) * weightScale))
			if _, err := g.AddEdge(names[i], names[j], w); err != nil {
				return nil, fmt.Errorf("trajectory: add edge %s-%s: %w", names[i], names[j], err)
			}
		}
	}

	edges, _, err := prim_kruskal.Kruskal(g)
	if err != nil {
		return nil, fmt.Errorf("trajectory: minimum spanning tree: %w", err)
	}

	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}
	for _, nbs := range adj {
		sort.Strings(nbs)
	}

	// Every root-to-leaf path in the MST is one lineage.
	var lineages [][]string
	var walk func(node string, path []string)
	walk = func(node string, path []string) {
		path = append(path, node)
		leaf := true
		for _, nb := range adj[node] {
			if len(path) > 1 && nb == path[len(path)-2] {
				continue
			}
			leaf = false
			walk(nb, path)
		}
		if leaf {
			lineage := make([]string, len(path))
			copy(lineage, path)
			lineages = append(lineages, lineage)
		}
	}
	walk(root, nil)
	return lineages, nil
}

// fitCurve fits a smooth curve through a lineage's centroids, parameterized by
// cumulative arc length, and samples it at points evenly spaced interpolation
// positions. It returns the sample matrix and the cumulative arc length of the
// sampled polyline.
func fitCurve(centroids map[string][]float64, lineage []string, dim, points int) (*mat.Dense, []float64, error) {
	if len(lineage) == 1 {
		curve := mat.NewDense(1, dim, nil)
		copy(curve.RawRowView(0), centroids[lineage[0]])
		return curve, []float64{0}, nil
	}

	// Arc-length parameterization of the control points. Coincident centroids
	// would break the strictly-increasing requirement of the interpolators.
	ts := make([]float64, len(lineage))
	for i := 1; i < len(lineage); i++ {
		seg := euclidean(centroids[lineage[i-1]], centroids[lineage[i]])
		if seg == 0 {
			seg = 1e-9
		}
		ts[i] = ts[i-1] + seg
	}

	if points < 2 {
		points = 2
	}
	curve := mat.NewDense(points, dim, nil)
	total := ts[len(ts)-1]
	ys := make([]float64, len(lineage))
	for j := 0; j < dim; j++ {
		for i, name := range lineage {
			ys[i] = centroids[name][j]
		}
		var pred interp.Predictor
		if len(lineage) >= 3 {
			var nc interp.NaturalCubic
			if err := nc.Fit(ts, ys); err != nil {
				return nil, nil, fmt.Errorf("trajectory: curve fit: %w", err)
			}
			pred = &nc
		} else {
			var pl interp.PiecewiseLinear
			if err := pl.Fit(ts, ys); err != nil {
				return nil, nil, fmt.Errorf("trajectory: curve fit: %w", err)
			}
			pred = &pl
		}
		for s := 0; s < points; s++ {
			t := total * float64(s) / float64(points-1)
			curve.Set(s, j, pred.Predict(t))
		}
	}

	cum := make([]float64, points)
	for s := 1; s < points; s++ {
		cum[s] = cum[s-1] + euclidean(curve.RawRowView(s-1), curve.RawRowView(s))
	}
	return curve, cum, nil
}

// project returns the arc-length position of the closest point on the sampled
// curve to p. The result is finite and non-negative.
func project(p []float64, curve *mat.Dense, cum []float64) float64 {
	m, _ := curve.Dims()
	if m == 1 {
		return 0
	}
	best := math.Inf(1)
	bestPT := 0.0
	for s := 0; s < m-1; s++ {
		a := curve.RawRowView(s)
		b := curve.RawRowView(s + 1)
		d2, t := pointSegment(p, a, b)
		if d2 < best {
			best = d2
			bestPT = cum[s] + t*(cum[s+1]-cum[s])
		}
	}
	return bestPT
}

// pointSegment returns the squared distance from p to segment ab and the
// normalized position of the projection along the segment.
func pointSegment(p, a, b []float64) (dist2, t float64) {
	var ab2, apab float64
	for i := range a {
		ab := b[i] - a[i]
		ab2 += ab * ab
		apab += (p[i] - a[i]) * ab
	}
	if ab2 > 0 {
		t = apab / ab2
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	for i := range a {
		d := p[i] - (a[i] + t*(b[i]-a[i]))
		dist2 += d * d
	}
	return dist2, t
}

func euclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
