package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	d, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.MigrateUp())
	return d
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.MigrateUp())

	version, dirty, err := d.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}

func TestMigrateUpIndependentOfWorkingDir(t *testing.T) {
	// The schema is embedded, so migrating must work no matter where the
	// process happens to be running.
	registryPath := filepath.Join(t.TempDir(), "registry.db")
	t.Chdir(t.TempDir())

	d, err := NewDB(registryPath)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.MigrateUp())
	version, _, err := d.MigrateVersion()
	require.NoError(t, err)
	require.Equal(t, uint(1), version)
}

func TestRunRoundTrip(t *testing.T) {
	d := openTestDB(t)

	run := &Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 6, 1, 12, 3, 30, 0, time.UTC),
		Params:     `{"som_metaclusters":14}`,
		RowCount:   30,
	}
	require.NoError(t, d.RecordRun(run))

	got, err := d.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, run.RowCount, got.RowCount)
	require.Equal(t, run.Params, got.Params)
	require.True(t, run.StartedAt.Equal(got.StartedAt))
	require.True(t, run.FinishedAt.Equal(got.FinishedAt))
}

func TestClusterSummaries(t *testing.T) {
	d := openTestDB(t)

	run := &Run{ID: uuid.NewString(), StartedAt: time.Now(), FinishedAt: time.Now(), Params: "{}", RowCount: 3}
	require.NoError(t, d.RecordRun(run))

	summaries := []ClusterSummary{
		{RunID: run.ID, Label: "Naive", CellCount: 2, Medians: map[string]float64{"CD45RA": 1.5}},
		{RunID: run.ID, Label: "CM", CellCount: 1, Medians: map[string]float64{"CD45RA": 0.2}},
	}
	require.NoError(t, d.RecordClusterSummaries(summaries))

	got, err := d.ListClusterSummaries(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// ordered by label
	require.Equal(t, "CM", got[0].Label)
	require.Equal(t, "Naive", got[1].Label)
	require.InDelta(t, 1.5, got[1].Medians["CD45RA"], 1e-12)
}

func TestArtifacts(t *testing.T) {
	d := openTestDB(t)

	run := &Run{ID: uuid.NewString(), StartedAt: time.Now(), FinishedAt: time.Now(), Params: "{}", RowCount: 1}
	require.NoError(t, d.RecordRun(run))

	require.NoError(t, d.RecordArtifact(Artifact{RunID: run.ID, Kind: "csv", Path: "/tmp/out.csv"}))
	require.NoError(t, d.RecordArtifact(Artifact{RunID: run.ID, Kind: "html", Path: "/tmp/report.html"}))

	got, err := d.ListArtifacts(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "csv", got[0].Kind)
}
