package transform

import (
	"math"
	"testing"

	"github.com/cytoflow-data/lineage.report/internal/frame"
)

func TestNewArcsinhRejectsNonPositiveCofactor(t *testing.T) {
	if _, err := NewArcsinh(0); err == nil {
		t.Fatal("expected error for zero cofactor")
	}
	if _, err := NewArcsinh(-5); err == nil {
		t.Fatal("expected error for negative cofactor")
	}
}

func TestArcsinhValue(t *testing.T) {
	a, err := NewArcsinh(5)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := a.Value(0); got != 0 {
		t.Errorf("asinh(0) should be 0, got %v", got)
	}
	want := math.Asinh(2)
	if got := a.Value(10); math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestArcsinhApply(t *testing.T) {
	tbl := frame.New(2)
	_ = tbl.AppendFloatColumn("CD69", []float64{0, 50})
	_ = tbl.AppendFloatColumn("CD103", []float64{5, 5})

	a, _ := NewArcsinh(5)
	if err := a.Apply(tbl, []string{"CD69"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	cd69, _ := tbl.FloatColumn("CD69")
	if cd69[0] != 0 || math.Abs(cd69[1]-math.Asinh(10)) > 1e-12 {
		t.Errorf("unexpected transformed values: %v", cd69)
	}
	// untouched column stays raw
	cd103, _ := tbl.FloatColumn("CD103")
	if cd103[0] != 5 {
		t.Errorf("CD103 should be untouched, got %v", cd103[0])
	}
}

func TestArcsinhApplyUnknownColumn(t *testing.T) {
	tbl := frame.New(1)
	a, _ := NewArcsinh(5)
	if err := a.Apply(tbl, []string{"missing"}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}
