// Package fcs loads per-cluster flow-cytometry event exports into one table.
//
// The expected layout is one delimited export per pre-gated population (for
// example export_CD4-1.csv), each with an identical header row of channel
// names. Binary instrument formats are not handled here; events are consumed
// from the CSV exports produced by the acquisition software.
package fcs

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cytoflow-data/lineage.report/internal/frame"
	"github.com/cytoflow-data/lineage.report/internal/monitoring"
)

// ErrNoEventFiles is returned when the input directory has no matching files.
// The pipeline treats this as fatal before any clustering begins.
var ErrNoEventFiles = errors.New("fcs: no event files found")

// Column names appended by the loader.
const (
	SourceClusterColumn = "source_cluster"
	SampleNameColumn    = "sample_name"
)

// sampleIDColumns are the header names recognized as the internal numeric
// sample code used for decode-file lookups.
var sampleIDColumns = []string{"sample_id", "SampleID", "OmiqFileIndex"}

// Load reads every file in dir matching the glob pattern (sorted by name),
// concatenates their events into one table and appends a source_cluster column
// derived from each file name. If decodePath is non-empty, sample codes are
// decoded to original file names in an appended sample_name column.
func Load(dir, pattern, decodePath string) (*frame.Table, error) {
	if pattern == "" {
		pattern = "*.csv"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("fcs: bad pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoEventFiles, dir, pattern)
	}
	sort.Strings(matches)

	var pooled *frame.Table
	var sources []string
	for _, path := range matches {
		tbl, err := readEventFile(path)
		if err != nil {
			return nil, err
		}
		label := ClusterLabelFromFilename(path)
		for i := 0; i < tbl.NumRows(); i++ {
			sources = append(sources, label)
		}
		if pooled == nil {
			pooled = tbl
			continue
		}
		if err := pooled.AppendRows(tbl); err != nil {
			return nil, fmt.Errorf("fcs: %s: %w", path, err)
		}
	}

	if err := pooled.AppendStringColumn(SourceClusterColumn, sources); err != nil {
		return nil, err
	}

	if decodePath != "" {
		decode, err := ParseDecodeFile(decodePath)
		if err != nil {
			return nil, err
		}
		if err := appendSampleNames(pooled, decode); err != nil {
			return nil, err
		}
	}
	return pooled, nil
}

// readEventFile parses one export: a header row of channel names followed by
// one row of float intensities per event.
func readEventFile(path string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fcs: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("fcs: parse %s: %w", path, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("fcs: %s: missing header row", path)
	}
	header := records[0]
	rows := records[1:]

	tbl := frame.New(len(rows))
	col := make([]float64, len(rows))
	for j, name := range header {
		name = strings.TrimSpace(name)
		for i, rec := range rows {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("fcs: %s row %d column %q: %w", path, i+1, name, err)
			}
			col[i] = v
		}
		if err := tbl.AppendFloatColumn(name, col); err != nil {
			return nil, fmt.Errorf("fcs: %s: %w", path, err)
		}
	}
	return tbl, nil
}

// ClusterLabelFromFilename derives the source-cluster label from an event file
// path: the basename without extension, keeping only the final underscore
// separated token so export prefixes drop away (export_run3_CD4-1.csv -> CD4-1).
func ClusterLabelFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.LastIndex(base, "_"); i >= 0 {
		return base[i+1:]
	}
	return base
}

// ParseDecodeFile reads a decode file mapping internal numeric sample codes to
// original file names, one "code: name" pair per line. Blank lines and lines
// starting with # are skipped.
func ParseDecodeFile(path string) (map[int]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fcs: open decode file: %w", err)
	}
	defer f.Close()

	decode := make(map[int]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		code, name, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("fcs: decode file line %d: expected \"code: name\", got %q", lineNo, line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("fcs: decode file line %d: bad code %q: %w", lineNo, code, err)
		}
		decode[id] = strings.TrimSpace(name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fcs: read decode file: %w", err)
	}
	return decode, nil
}

// appendSampleNames maps the table's sample-code column through the decode
// mapping. Unknown codes are non-fatal: the row keeps an empty sample name and
// each unknown code is logged once.
func appendSampleNames(tbl *frame.Table, decode map[int]string) error {
	var codes []float64
	for _, name := range sampleIDColumns {
		if tbl.HasColumn(name) {
			col, err := tbl.FloatColumn(name)
			if err != nil {
				return err
			}
			codes = col
			break
		}
	}
	if codes == nil {
		monitoring.Logf("fcs: decode file supplied but no sample code column present; skipping sample decoding")
		return nil
	}

	names := make([]string, len(codes))
	warned := make(map[int]bool)
	for i, c := range codes {
		code := int(c)
		name, ok := decode[code]
		if !ok {
			if !warned[code] {
				monitoring.Logf("fcs: sample code %d has no decode entry; leaving sample name undefined", code)
				warned[code] = true
			}
			continue
		}
		names[i] = name
	}
	return tbl.AppendStringColumn(SampleNameColumn, names)
}
