// Package knn provides exact k-nearest-neighbour queries over a dense marker
// matrix. Neighbour search is brute force: event counts in this pipeline are
// small enough that an index would not pay for itself.
package knn

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Neighbors returns, for each row of X, the indices and Euclidean distances of
// its k nearest other rows, sorted by ascending distance with index as the
// tie-break so results are deterministic.
func Neighbors(X *mat.Dense, k int) (idx [][]int, dist [][]float64, err error) {
	n, _ := X.Dims()
	if k < 1 {
		return nil, nil, fmt.Errorf("knn: k must be at least 1, got %d", k)
	}
	if k >= n {
		return nil, nil, fmt.Errorf("knn: k=%d requires more than %d rows", k, n)
	}

	idx = make([][]int, n)
	dist = make([][]float64, n)
	order := make([]int, n)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		ri := X.RawRowView(i)
		for j := 0; j < n; j++ {
			if j == i {
				d[j] = math.Inf(1)
				continue
			}
			d[j] = euclidean(ri, X.RawRowView(j))
		}
		for j := range order {
			order[j] = j
		}
		sort.Slice(order, func(a, b int) bool {
			if d[order[a]] != d[order[b]] {
				return d[order[a]] < d[order[b]]
			}
			return order[a] < order[b]
		})
		idx[i] = make([]int, k)
		dist[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			idx[i][j] = order[j]
			dist[i][j] = d[order[j]]
		}
	}
	return idx, dist, nil
}

func euclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
