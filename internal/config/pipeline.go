// Package config loads pipeline parameters from JSON. All fields are
// pointers so partial config files can overlay the defaults; fields omitted
// from the JSON keep their default values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the canonical defaults file for pipeline parameters.
const DefaultConfigPath = "config/pipeline.defaults.json"

// PipelineConfig is the root configuration for one pipeline run. Everything
// is a call-time constant: there is no runtime reconfiguration.
type PipelineConfig struct {
	// Input
	InputDir    *string `json:"input_dir,omitempty"`
	FilePattern *string `json:"file_pattern,omitempty"`
	DecodePath  *string `json:"decode_path,omitempty"`

	// Output
	OutputCSV    *string `json:"output_csv,omitempty"`
	ReportHTML   *string `json:"report_html,omitempty"`
	ReportPNG    *string `json:"report_png,omitempty"`
	RegistryPath *string `json:"registry_path,omitempty"`

	// Preprocessing
	ArcsinhCofactor *float64 `json:"arcsinh_cofactor,omitempty"` // 0 disables the transform

	// Marker subsets. Empty means all float channels except the sample code.
	ClusterMarkers []string `json:"cluster_markers,omitempty"`
	EmbedMarkers   []string `json:"embed_markers,omitempty"`

	// SOM clustering
	SOMGridRows     *int   `json:"som_grid_rows,omitempty"`
	SOMGridCols     *int   `json:"som_grid_cols,omitempty"`
	SOMEpochs       *int   `json:"som_epochs,omitempty"`
	SOMMetaclusters *int   `json:"som_metaclusters,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`

	// Graph clustering
	GraphK          *int     `json:"graph_k,omitempty"`
	GraphResolution *float64 `json:"graph_resolution,omitempty"`

	// Embeddings
	DiffusionK          *int     `json:"diffusion_k,omitempty"`
	DiffusionComponents *int     `json:"diffusion_components,omitempty"`
	NeighborK           *int     `json:"neighbor_k,omitempty"`
	NeighborMinDist     *float64 `json:"neighbor_min_dist,omitempty"`

	// Trajectory
	RootCluster    *string `json:"root_cluster,omitempty"`
	CurvePoints    *int    `json:"curve_points,omitempty"`
	SkipTrajectory *bool   `json:"skip_trajectory,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// DefaultPipelineConfig returns the built-in defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		FilePattern:         ptrString("*.csv"),
		OutputCSV:           ptrString("lineage_output.csv"),
		ArcsinhCofactor:     ptrFloat64(0),
		SOMGridRows:         ptrInt(10),
		SOMGridCols:         ptrInt(10),
		SOMEpochs:           ptrInt(10),
		SOMMetaclusters:     ptrInt(14),
		Seed:                ptrInt64(1),
		GraphK:              ptrInt(15),
		GraphResolution:     ptrFloat64(1.0),
		DiffusionK:          ptrInt(15),
		DiffusionComponents: ptrInt(3),
		NeighborK:           ptrInt(15),
		NeighborMinDist:     ptrFloat64(0.1),
		RootCluster:         ptrString("Naive"),
		CurvePoints:         ptrInt(150),
		SkipTrajectory:      ptrBool(false),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file. The file must
// have a .json extension and stay under the size cap; fields omitted from the
// JSON stay nil, so partial configs are safe.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg PipelineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// Merge overlays the non-nil fields of other onto a copy of c and returns it.
func (c *PipelineConfig) Merge(other *PipelineConfig) *PipelineConfig {
	out := *c
	if other == nil {
		return &out
	}
	if other.InputDir != nil {
		out.InputDir = other.InputDir
	}
	if other.FilePattern != nil {
		out.FilePattern = other.FilePattern
	}
	if other.DecodePath != nil {
		out.DecodePath = other.DecodePath
	}
	if other.OutputCSV != nil {
		out.OutputCSV = other.OutputCSV
	}
	if other.ReportHTML != nil {
		out.ReportHTML = other.ReportHTML
	}
	if other.ReportPNG != nil {
		out.ReportPNG = other.ReportPNG
	}
	if other.RegistryPath != nil {
		out.RegistryPath = other.RegistryPath
	}
	if other.ArcsinhCofactor != nil {
		out.ArcsinhCofactor = other.ArcsinhCofactor
	}
	if len(other.ClusterMarkers) > 0 {
		out.ClusterMarkers = other.ClusterMarkers
	}
	if len(other.EmbedMarkers) > 0 {
		out.EmbedMarkers = other.EmbedMarkers
	}
	if other.SOMGridRows != nil {
		out.SOMGridRows = other.SOMGridRows
	}
	if other.SOMGridCols != nil {
		out.SOMGridCols = other.SOMGridCols
	}
	if other.SOMEpochs != nil {
		out.SOMEpochs = other.SOMEpochs
	}
	if other.SOMMetaclusters != nil {
		out.SOMMetaclusters = other.SOMMetaclusters
	}
	if other.Seed != nil {
		out.Seed = other.Seed
	}
	if other.GraphK != nil {
		out.GraphK = other.GraphK
	}
	if other.GraphResolution != nil {
		out.GraphResolution = other.GraphResolution
	}
	if other.DiffusionK != nil {
		out.DiffusionK = other.DiffusionK
	}
	if other.DiffusionComponents != nil {
		out.DiffusionComponents = other.DiffusionComponents
	}
	if other.NeighborK != nil {
		out.NeighborK = other.NeighborK
	}
	if other.NeighborMinDist != nil {
		out.NeighborMinDist = other.NeighborMinDist
	}
	if other.RootCluster != nil {
		out.RootCluster = other.RootCluster
	}
	if other.CurvePoints != nil {
		out.CurvePoints = other.CurvePoints
	}
	if other.SkipTrajectory != nil {
		out.SkipTrajectory = other.SkipTrajectory
	}
	return &out
}
