// Package transform implements intensity scaling applied to marker columns
// before clustering and embedding.
package transform

import (
	"fmt"
	"math"

	"github.com/cytoflow-data/lineage.report/internal/frame"
)

// DefaultCofactor is the conventional arcsinh cofactor for mass-cytometry
// style intensity data. Fluorescence data typically uses 150.
const DefaultCofactor = 5.0

// Arcsinh scales intensities with x -> asinh(x / cofactor), compressing the
// high tail while staying near-linear around zero.
type Arcsinh struct {
	cofactor float64
}

// NewArcsinh returns an arcsinh transform with the given cofactor.
func NewArcsinh(cofactor float64) (*Arcsinh, error) {
	if cofactor <= 0 {
		return nil, fmt.Errorf("transform: cofactor must be positive, got %v", cofactor)
	}
	return &Arcsinh{cofactor: cofactor}, nil
}

// Cofactor returns the configured cofactor.
func (a *Arcsinh) Cofactor() float64 { return a.cofactor }

// Value transforms a single intensity.
func (a *Arcsinh) Value(v float64) float64 {
	return math.Asinh(v / a.cofactor)
}

// Apply rewrites the named marker columns in place.
func (a *Arcsinh) Apply(tbl *frame.Table, markers []string) error {
	for _, name := range markers {
		if err := tbl.TransformFloatColumn(name, a.Value); err != nil {
			return fmt.Errorf("transform: %w", err)
		}
	}
	return nil
}
