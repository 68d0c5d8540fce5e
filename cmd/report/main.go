// Command report regenerates HTML and PNG reports from a pipeline output CSV
// without re-running the analysis.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/cytoflow-data/lineage.report/internal/frame"
	"github.com/cytoflow-data/lineage.report/internal/report"
)

var (
	inputCSV = flag.String("in", "", "Pipeline output CSV to read")
	htmlPath = flag.String("html", "", "HTML report path")
	pngPath  = flag.String("png", "", "PNG scatter plot path")
	colorBy  = flag.String("color-by", "", "Label column for the cluster views (default merged_cluster)")
)

func main() {
	flag.Parse()
	if *inputCSV == "" {
		log.Fatal("-in is required")
	}
	if *htmlPath == "" && *pngPath == "" {
		log.Fatal("at least one of -html or -png is required")
	}

	f, err := os.Open(*inputCSV)
	if err != nil {
		log.Fatalf("failed to open input: %v", err)
	}
	tbl, err := frame.ReadCSV(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to read input: %v", err)
	}
	log.Printf("read %d cells from %s", tbl.NumRows(), *inputCSV)

	opts := report.DefaultOptions()
	if *colorBy != "" {
		opts.LabelColumn = *colorBy
	}

	if *htmlPath != "" {
		if err := report.WriteHTML(tbl, *htmlPath, opts); err != nil {
			log.Fatalf("failed to write HTML report: %v", err)
		}
		log.Printf("wrote %s", *htmlPath)
	}
	if *pngPath != "" {
		// Lineage curves are only available during a pipeline run; the
		// regenerated plot shows cluster positions only.
		if err := report.WritePNG(tbl, nil, *pngPath, opts); err != nil {
			log.Fatalf("failed to write PNG plot: %v", err)
		}
		log.Printf("wrote %s", *pngPath)
	}
}
