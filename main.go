// Command lineage-report runs the single-pass cytometry analysis pipeline:
// load per-cluster event exports, re-cluster them with a SOM and with graph
// community detection, compute diffusion and neighbour embeddings, merge the
// fine source labels into a coarse vocabulary, infer pseudotime lineages from
// a designated root population, and write one denormalized CSV per cell.
//
// Stages run strictly in order and each one only appends columns; any stage
// error aborts the run before anything is written.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cytoflow-data/lineage.report/internal/config"
	"github.com/cytoflow-data/lineage.report/internal/db"
	"github.com/cytoflow-data/lineage.report/internal/embed"
	"github.com/cytoflow-data/lineage.report/internal/fcs"
	"github.com/cytoflow-data/lineage.report/internal/frame"
	"github.com/cytoflow-data/lineage.report/internal/graphcluster"
	"github.com/cytoflow-data/lineage.report/internal/labels"
	"github.com/cytoflow-data/lineage.report/internal/report"
	"github.com/cytoflow-data/lineage.report/internal/som"
	"github.com/cytoflow-data/lineage.report/internal/trajectory"
	"github.com/cytoflow-data/lineage.report/internal/transform"
)

// Column names appended by the pipeline stages.
const (
	SOMClusterColumn    = "som_cluster"
	GraphClusterColumn  = "graph_cluster"
	MergedClusterColumn = "merged_cluster"
)

var (
	inputDir       = flag.String("input", "", "Directory of per-cluster event CSV exports")
	decodePath     = flag.String("decode", "", "Optional decode file mapping sample codes to file names")
	configPath     = flag.String("config", "", "Optional JSON config overlaying the defaults")
	outputCSV      = flag.String("out", "", "Output CSV path")
	registryPath   = flag.String("db", "", "Optional sqlite run-registry path")
	reportHTML     = flag.String("html", "", "Optional HTML report path")
	reportPNG      = flag.String("png", "", "Optional PNG lineage plot path")
	rootCluster    = flag.String("root", "", "Root cluster for trajectory inference")
	seed           = flag.Int64("seed", 0, "Random seed for SOM and graph clustering (0 keeps config value)")
	skipTrajectory = flag.Bool("skip-trajectory", false, "Skip trajectory inference and write upstream columns only")
)

func main() {
	flag.Parse()

	cfg := config.DefaultPipelineConfig()
	if *configPath != "" {
		fileCfg, err := config.LoadPipelineConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.Merge(flagOverrides())

	if cfg.InputDir == nil || *cfg.InputDir == "" {
		log.Fatal("input directory is required (-input or input_dir in config)")
	}

	if err := runPipeline(cfg); err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}
}

// flagOverrides converts the set command-line flags into a partial config.
func flagOverrides() *config.PipelineConfig {
	overlay := &config.PipelineConfig{}
	if *inputDir != "" {
		overlay.InputDir = inputDir
	}
	if *decodePath != "" {
		overlay.DecodePath = decodePath
	}
	if *outputCSV != "" {
		overlay.OutputCSV = outputCSV
	}
	if *registryPath != "" {
		overlay.RegistryPath = registryPath
	}
	if *reportHTML != "" {
		overlay.ReportHTML = reportHTML
	}
	if *reportPNG != "" {
		overlay.ReportPNG = reportPNG
	}
	if *rootCluster != "" {
		overlay.RootCluster = rootCluster
	}
	if *seed != 0 {
		overlay.Seed = seed
	}
	if *skipTrajectory {
		overlay.SkipTrajectory = skipTrajectory
	}
	return overlay
}

// runPipeline executes every stage in order against one shared table. The
// table's row count is fixed at load; stages only append columns.
func runPipeline(cfg *config.PipelineConfig) error {
	startedAt := time.Now()

	tbl, err := fcs.Load(*cfg.InputDir, deref(cfg.FilePattern), deref(cfg.DecodePath))
	if err != nil {
		return err
	}
	log.Printf("loaded %d cells with %d channels", tbl.NumRows(), tbl.NumCols())

	clusterMarkers := markersOrDefault(tbl, cfg.ClusterMarkers)
	embedMarkers := markersOrDefault(tbl, cfg.EmbedMarkers)

	if cofactor := deref(cfg.ArcsinhCofactor); cofactor > 0 {
		arcsinh, err := transform.NewArcsinh(cofactor)
		if err != nil {
			return err
		}
		if err := arcsinh.Apply(tbl, union(clusterMarkers, embedMarkers)); err != nil {
			return err
		}
		log.Printf("applied arcsinh transform (cofactor %g)", cofactor)
	}

	clusterX, err := tbl.MarkerMatrix(clusterMarkers)
	if err != nil {
		return err
	}

	somLabels, err := som.New(som.Params{
		GridRows:     deref(cfg.SOMGridRows),
		GridCols:     deref(cfg.SOMGridCols),
		Epochs:       deref(cfg.SOMEpochs),
		Metaclusters: deref(cfg.SOMMetaclusters),
		Seed:         deref(cfg.Seed),
	}).Fit(clusterX)
	if err != nil {
		return err
	}
	if err := tbl.AppendStringColumn(SOMClusterColumn, somLabels); err != nil {
		return err
	}
	log.Printf("SOM clustering done (%d metaclusters requested)", deref(cfg.SOMMetaclusters))

	graphLabels, err := graphcluster.New(graphcluster.Params{
		K:          deref(cfg.GraphK),
		Resolution: deref(cfg.GraphResolution),
		Seed:       deref(cfg.Seed),
	}).Fit(clusterX)
	if err != nil {
		return err
	}
	if err := tbl.AppendStringColumn(GraphClusterColumn, graphLabels); err != nil {
		return err
	}
	log.Printf("graph clustering done (k=%d)", deref(cfg.GraphK))

	embedX, err := tbl.MarkerMatrix(embedMarkers)
	if err != nil {
		return err
	}

	diffusion, err := embed.DiffusionMap(embedX, deref(cfg.DiffusionK), deref(cfg.DiffusionComponents))
	if err != nil {
		return err
	}
	_, nDC := diffusion.Dims()
	for j := 0; j < nDC; j++ {
		if err := tbl.AppendFloatColumn(fmt.Sprintf("DC%d", j+1), colSlice(diffusion, j)); err != nil {
			return err
		}
	}
	log.Printf("diffusion map done (%d components)", nDC)

	neighbor, err := embed.NeighborEmbedding(embedX, deref(cfg.NeighborK), deref(cfg.NeighborMinDist))
	if err != nil {
		return err
	}
	for j := 0; j < embed.NeighborDims; j++ {
		if err := tbl.AppendFloatColumn(fmt.Sprintf("NE%d", j+1), colSlice(neighbor, j)); err != nil {
			return err
		}
	}
	log.Printf("neighbour embedding done")

	if err := labels.MergeColumn(tbl, fcs.SourceClusterColumn, MergedClusterColumn, labels.DefaultCD4Rules()); err != nil {
		return err
	}

	var trajResult *trajectory.Result
	if deref(cfg.SkipTrajectory) {
		log.Printf("trajectory inference skipped by request")
	} else {
		merged, err := tbl.StringColumn(MergedClusterColumn)
		if err != nil {
			return err
		}
		trajResult, err = trajectory.Infer(diffusion, merged, trajectory.Params{
			Root:        deref(cfg.RootCluster),
			CurvePoints: deref(cfg.CurvePoints),
		})
		if err != nil {
			return err
		}
		for k, pt := range trajResult.Pseudotime {
			if err := tbl.AppendFloatColumn(fmt.Sprintf("pseudotime_%d", k+1), pt); err != nil {
				return err
			}
		}
		log.Printf("trajectory inference done (%d lineages from root %q)", len(trajResult.Lineages), deref(cfg.RootCluster))
	}

	outPath := deref(cfg.OutputCSV)
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := tbl.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("wrote %s (%d rows)", outPath, tbl.NumRows())

	if path := deref(cfg.ReportHTML); path != "" {
		if err := report.WriteHTML(tbl, path, report.DefaultOptions()); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	if path := deref(cfg.ReportPNG); path != "" {
		if err := report.WritePNG(tbl, trajResult, path, report.DefaultOptions()); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}

	if path := deref(cfg.RegistryPath); path != "" {
		if err := recordRun(path, cfg, tbl, clusterMarkers, startedAt); err != nil {
			return err
		}
	}
	return nil
}

// recordRun persists the run, its per-cluster summaries and artifact paths in
// the sqlite registry.
func recordRun(path string, cfg *config.PipelineConfig, tbl *frame.Table, markers []string, startedAt time.Time) error {
	registry, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer registry.Close()
	if err := registry.MigrateUp(); err != nil {
		return err
	}

	params, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	run := &db.Run{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Params:     string(params),
		RowCount:   tbl.NumRows(),
	}
	if err := registry.RecordRun(run); err != nil {
		return err
	}

	summaries, err := clusterSummaries(run.ID, tbl, markers)
	if err != nil {
		return err
	}
	if err := registry.RecordClusterSummaries(summaries); err != nil {
		return err
	}

	for kind, p := range map[string]string{
		"csv":  deref(cfg.OutputCSV),
		"html": deref(cfg.ReportHTML),
		"png":  deref(cfg.ReportPNG),
	} {
		if p == "" {
			continue
		}
		if err := registry.RecordArtifact(db.Artifact{RunID: run.ID, Kind: kind, Path: p}); err != nil {
			return err
		}
	}
	log.Printf("recorded run %s in %s", run.ID, path)
	return nil
}

// clusterSummaries digests the table per merged cluster: cell count and the
// median of every clustering marker.
func clusterSummaries(runID string, tbl *frame.Table, markers []string) ([]db.ClusterSummary, error) {
	merged, err := tbl.StringColumn(MergedClusterColumn)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string][]int)
	for i, label := range merged {
		byLabel[label] = append(byLabel[label], i)
	}
	names := make([]string, 0, len(byLabel))
	for label := range byLabel {
		names = append(names, label)
	}
	sort.Strings(names)

	var out []db.ClusterSummary
	for _, label := range names {
		rows := byLabel[label]
		medians := make(map[string]float64, len(markers))
		for _, marker := range markers {
			col, err := tbl.FloatColumn(marker)
			if err != nil {
				return nil, err
			}
			values := make([]float64, 0, len(rows))
			for _, i := range rows {
				if !math.IsNaN(col[i]) {
					values = append(values, col[i])
				}
			}
			if len(values) == 0 {
				continue
			}
			sort.Float64s(values)
			medians[marker] = stat.Quantile(0.5, stat.Empirical, values, nil)
		}
		out = append(out, db.ClusterSummary{
			RunID:     runID,
			Label:     label,
			CellCount: len(rows),
			Medians:   medians,
		})
	}
	return out, nil
}

// markersOrDefault returns the configured marker subset, or every float
// channel except the sample code when none is configured.
func markersOrDefault(tbl *frame.Table, configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	skip := map[string]bool{"sample_id": true, "SampleID": true, "OmiqFileIndex": true}
	var out []string
	for _, name := range tbl.FloatColumnNames() {
		if !skip[name] {
			out = append(out, name)
		}
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func colSlice(m *mat.Dense, j int) []float64 {
	n, _ := m.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = m.At(i, j)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
