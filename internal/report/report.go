// Package report renders visual summaries of a pipeline run: an interactive
// HTML page of the embeddings and a static PNG of the lineage curves.
package report

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cytoflow-data/lineage.report/internal/frame"
)

// viridis is the colour ramp used for pseudotime scatter shading.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Options names the table columns a report reads.
type Options struct {
	LabelColumn      string // coarse cluster labels, e.g. "merged_cluster"
	NeighborX        string // e.g. "NE1"
	NeighborY        string // e.g. "NE2"
	DiffusionX       string // e.g. "DC1"
	DiffusionY       string // e.g. "DC2"
	PseudotimeColumn string // optional, e.g. "pseudotime_1"
}

// DefaultOptions matches the column names the pipeline writes.
func DefaultOptions() Options {
	return Options{
		LabelColumn:      "merged_cluster",
		NeighborX:        "NE1",
		NeighborY:        "NE2",
		DiffusionX:       "DC1",
		DiffusionY:       "DC2",
		PseudotimeColumn: "pseudotime_1",
	}
}

// WriteHTML renders an echarts page with the neighbour embedding coloured by
// cluster and, when pseudotime is present, the diffusion embedding shaded by
// pseudotime. Cells with undefined pseudotime are omitted from the shaded
// view only; the persisted table is untouched.
func WriteHTML(tbl *frame.Table, path string, o Options) error {
	page := components.NewPage()
	page.PageTitle = "lineage report"

	clusterScatter, err := clusterChart(tbl, o)
	if err != nil {
		return err
	}
	page.AddCharts(clusterScatter)

	if o.PseudotimeColumn != "" && tbl.HasColumn(o.PseudotimeColumn) {
		ptScatter, err := pseudotimeChart(tbl, o)
		if err != nil {
			return err
		}
		page.AddCharts(ptScatter)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

func clusterChart(tbl *frame.Table, o Options) (*charts.Scatter, error) {
	xs, err := tbl.FloatColumn(o.NeighborX)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	ys, err := tbl.FloatColumn(o.NeighborY)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	labels, err := tbl.StringColumn(o.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	series := make(map[string][]opts.ScatterData)
	for i := range labels {
		series[labels[i]] = append(series[labels[i]], opts.ScatterData{Value: []interface{}{xs[i], ys[i]}})
	}
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Neighbour embedding", Subtitle: fmt.Sprintf("%d cells, %d clusters", tbl.NumRows(), len(names))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: o.NeighborX}),
		charts.WithYAxisOpts(opts.YAxis{Name: o.NeighborY}),
	)
	for _, name := range names {
		scatter.AddSeries(name, series[name], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	return scatter, nil
}

func pseudotimeChart(tbl *frame.Table, o Options) (*charts.Scatter, error) {
	xs, err := tbl.FloatColumn(o.DiffusionX)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	ys, err := tbl.FloatColumn(o.DiffusionY)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	pt, err := tbl.FloatColumn(o.PseudotimeColumn)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	data := make([]opts.ScatterData, 0, len(pt))
	maxPT := 0.0
	for i := range pt {
		if math.IsNaN(pt[i]) {
			continue
		}
		if pt[i] > maxPT {
			maxPT = pt[i]
		}
		data = append(data, opts.ScatterData{Value: []interface{}{xs[i], ys[i], pt[i]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pseudotime", Subtitle: o.PseudotimeColumn}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: o.DiffusionX}),
		charts.WithYAxisOpts(opts.YAxis{Name: o.DiffusionY}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxPT),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("pseudotime", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter, nil
}
