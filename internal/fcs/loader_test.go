package fcs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cytoflow-data/lineage.report/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func writeEventFile(t *testing.T, dir, name, header string, rows []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := header + "\n"
	for _, r := range rows {
		content += r + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeSyntheticCluster(t *testing.T, dir, cluster string, sampleCode int, n int) {
	t.Helper()
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf("%d.5,%d.25,%d", i, i, sampleCode)
	}
	writeEventFile(t, dir, "export_"+cluster+".csv", "CD45RA,CCR7,sample_id", rows)
}

func TestLoadPoolsAllClusters(t *testing.T) {
	dir := t.TempDir()
	writeSyntheticCluster(t, dir, "A", 1, 10)
	writeSyntheticCluster(t, dir, "B", 2, 10)
	writeSyntheticCluster(t, dir, "C", 3, 10)

	tbl, err := Load(dir, "*.csv", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl.NumRows() != 30 {
		t.Fatalf("expected 30 rows, got %d", tbl.NumRows())
	}
	src, err := tbl.StringColumn(SourceClusterColumn)
	if err != nil {
		t.Fatalf("source column: %v", err)
	}
	counts := map[string]int{}
	for _, s := range src {
		counts[s]++
	}
	for _, cluster := range []string{"A", "B", "C"} {
		if counts[cluster] != 10 {
			t.Errorf("cluster %s: expected 10 rows, got %d", cluster, counts[cluster])
		}
	}
}

func TestLoadEmptyDirFails(t *testing.T) {
	_, err := Load(t.TempDir(), "*.csv", "")
	if !errors.Is(err, ErrNoEventFiles) {
		t.Fatalf("expected ErrNoEventFiles, got %v", err)
	}
}

func TestLoadWithDecodeFile(t *testing.T) {
	dir := t.TempDir()
	writeSyntheticCluster(t, dir, "CD4-1", 3, 2)
	writeSyntheticCluster(t, dir, "CD4-2", 7, 2)

	decodePath := filepath.Join(dir, "decode.txt")
	decode := "# sample decode\n3: donor7_LP.fcs\n"
	if err := os.WriteFile(decodePath, []byte(decode), 0o644); err != nil {
		t.Fatalf("write decode: %v", err)
	}

	tbl, err := Load(dir, "export_*.csv", decodePath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	names, err := tbl.StringColumn(SampleNameColumn)
	if err != nil {
		t.Fatalf("sample names: %v", err)
	}
	src, _ := tbl.StringColumn(SourceClusterColumn)
	for i := range names {
		switch src[i] {
		case "CD4-1":
			if names[i] != "donor7_LP.fcs" {
				t.Errorf("row %d: expected decoded name, got %q", i, names[i])
			}
		case "CD4-2":
			// code 7 has no decode entry: undefined, not an error
			if names[i] != "" {
				t.Errorf("row %d: expected empty sample name, got %q", i, names[i])
			}
		}
	}
}

func TestLoadHeaderMismatchFails(t *testing.T) {
	dir := t.TempDir()
	writeEventFile(t, dir, "export_A.csv", "CD45RA,CCR7", []string{"1,2"})
	writeEventFile(t, dir, "export_B.csv", "CCR7,CD45RA", []string{"1,2"})
	if _, err := Load(dir, "*.csv", ""); err == nil {
		t.Fatal("expected header mismatch error")
	}
}

func TestClusterLabelFromFilename(t *testing.T) {
	cases := map[string]string{
		"/data/export_CD4-1.csv":      "CD4-1",
		"/data/export_run3_CD4-13.csv": "CD4-13",
		"/data/CD4-2.csv":             "CD4-2",
	}
	for path, want := range cases {
		if got := ClusterLabelFromFilename(path); got != want {
			t.Errorf("%s: expected %q, got %q", path, want, got)
		}
	}
}

func TestParseDecodeFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decode.txt")
	if err := os.WriteFile(path, []byte("not a pair\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseDecodeFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
