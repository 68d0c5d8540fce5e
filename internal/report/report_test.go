package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cytoflow-data/lineage.report/internal/frame"
	"github.com/cytoflow-data/lineage.report/internal/trajectory"
	"gonum.org/v1/gonum/mat"
)

func reportTable(t *testing.T) *frame.Table {
	t.Helper()
	tbl := frame.New(6)
	mustAppendFloat := func(name string, v []float64) {
		t.Helper()
		if err := tbl.AppendFloatColumn(name, v); err != nil {
			t.Fatalf("append %s: %v", name, err)
		}
	}
	mustAppendFloat("NE1", []float64{0, 1, 2, 3, 4, 5})
	mustAppendFloat("NE2", []float64{5, 4, 3, 2, 1, 0})
	mustAppendFloat("DC1", []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5})
	mustAppendFloat("DC2", []float64{0, 0, 0.1, 0.1, 0.2, 0.2})
	mustAppendFloat("pseudotime_1", []float64{0, 0.5, 1, 1.5, math.NaN(), math.NaN()})
	if err := tbl.AppendStringColumn("merged_cluster", []string{"Naive", "Naive", "CM", "CM", "Treg", "Treg"}); err != nil {
		t.Fatalf("append labels: %v", err)
	}
	return tbl
}

func TestWriteHTML(t *testing.T) {
	tbl := reportTable(t)
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteHTML(tbl, path, DefaultOptions()); err != nil {
		t.Fatalf("write html: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "echarts") {
		t.Error("expected echarts payload in report")
	}
	if !strings.Contains(html, "Naive") {
		t.Error("expected cluster series names in report")
	}
}

func TestWriteHTMLMissingColumn(t *testing.T) {
	tbl := frame.New(1)
	_ = tbl.AppendFloatColumn("NE1", []float64{0})
	err := WriteHTML(tbl, filepath.Join(t.TempDir(), "r.html"), DefaultOptions())
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestWritePNG(t *testing.T) {
	tbl := reportTable(t)
	curve := mat.NewDense(3, 2, []float64{0, 0, 0.25, 0.1, 0.5, 0.2})
	res := &trajectory.Result{
		Lineages:     [][]string{{"Naive", "CM"}},
		CurveSamples: []*mat.Dense{curve},
	}
	path := filepath.Join(t.TempDir(), "lineages.png")
	if err := WritePNG(tbl, res, path, DefaultOptions()); err != nil {
		t.Fatalf("write png: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("png file is empty")
	}
}

func TestWritePNGWithoutTrajectory(t *testing.T) {
	tbl := reportTable(t)
	path := filepath.Join(t.TempDir(), "scatter.png")
	if err := WritePNG(tbl, nil, path, DefaultOptions()); err != nil {
		t.Fatalf("write png: %v", err)
	}
}
