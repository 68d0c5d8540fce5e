package report

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cytoflow-data/lineage.report/internal/frame"
	"github.com/cytoflow-data/lineage.report/internal/trajectory"
)

// WritePNG renders the diffusion embedding as a static scatter coloured per
// cluster, with the fitted lineage curves drawn on top when a trajectory
// result is supplied.
func WritePNG(tbl *frame.Table, res *trajectory.Result, path string, o Options) error {
	xs, err := tbl.FloatColumn(o.DiffusionX)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	ys, err := tbl.FloatColumn(o.DiffusionY)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	labels, err := tbl.StringColumn(o.LabelColumn)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Diffusion embedding with lineage curves"
	p.X.Label.Text = o.DiffusionX
	p.Y.Label.Text = o.DiffusionY

	groups := make(map[string]plotter.XYs)
	for i := range labels {
		groups[labels[i]] = append(groups[labels[i]], plotter.XY{X: xs[i], Y: ys[i]})
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	palette := clusterPalette(len(names))
	for i, name := range names {
		sc, err := plotter.NewScatter(groups[name])
		if err != nil {
			return fmt.Errorf("report: scatter %q: %w", name, err)
		}
		sc.GlyphStyle.Color = palette[i]
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(name, sc)
	}

	if res != nil {
		for k, curve := range res.CurveSamples {
			m, _ := curve.Dims()
			pts := make(plotter.XYs, m)
			for s := 0; s < m; s++ {
				pts[s] = plotter.XY{X: curve.At(s, 0), Y: curve.At(s, 1)}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("report: lineage %d curve: %w", k+1, err)
			}
			line.Width = vg.Points(1.5)
			line.Color = color.Black
			p.Add(line)
		}
	}

	p.Legend.Top = true
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save png: %w", err)
	}
	return nil
}

// clusterPalette spreads n distinct hues around the colour wheel.
func clusterPalette(n int) []color.Color {
	out := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(max(n, 1))
		out[i] = hsvToRGB(hue)
	}
	return out
}

// hsvToRGB converts a hue (s=0.65, v=0.85 fixed) to an RGBA colour.
func hsvToRGB(h float64) color.Color {
	const s, v = 0.65, 0.85
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}
