package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gofortune/internal/datfile"
	"gofortune/internal/strfile"
)

func TestEnsureIndexUsesFreshSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "alpha", "one\n%\ntwo\n")

	before, err := os.ReadFile(datfile.DatPath(path))
	require.NoError(t, err)

	ff, err := EnsureIndex(path, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 2, ff.RecordCount())

	after, err := os.ReadFile(datfile.DatPath(path))
	require.NoError(t, err)
	require.Equal(t, before, after, "fresh sidecar must not be rewritten")
}

func TestEnsureIndexBuildsMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha")
	require.NoError(t, os.WriteFile(path, []byte("one\n%\ntwo\n"), 0o644))

	ff, err := EnsureIndex(path, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 2, ff.RecordCount())

	// The regenerated index is published next to the text.
	_, err = os.Stat(datfile.DatPath(path))
	require.NoError(t, err)
}

func TestEnsureIndexRebuildsStaleSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "alpha", "one\n%\ntwo\n")

	// Grow the corpus, then backdate the sidecar so it looks stale.
	require.NoError(t, os.WriteFile(path, []byte("one\n%\ntwo\n%\nthree\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(datfile.DatPath(path), old, old))

	ff, err := EnsureIndex(path, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 3, ff.RecordCount())
}

func TestEnsureIndexKeepsContentSortedSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha")
	text := []byte("zebra\n%\napple\n%\nmango\n")
	require.NoError(t, os.WriteFile(path, text, 0o644))

	dat, _, err := strfile.Build(text, strfile.Options{Order: true})
	require.NoError(t, err)
	require.NoError(t, dat.WriteFile(datfile.DatPath(path)))

	ff, err := EnsureIndex(path, 0, nil)
	require.NoError(t, err)
	require.Equal(t, dat.Offsets, ff.Dat.Offsets, "sorted sidecar must be reused, not rebuilt")

	first, err := ff.Text(0)
	require.NoError(t, err)
	require.Equal(t, "apple\n", first)
}

func TestEnsureIndexRebuildsCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha")
	require.NoError(t, os.WriteFile(path, []byte("one\n%\ntwo\n"), 0o644))
	require.NoError(t, os.WriteFile(datfile.DatPath(path), []byte("not a dat"), 0o644))

	ff, err := EnsureIndex(path, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 2, ff.RecordCount())
}

func TestEnsureIndexSurvivesUnwritableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind for root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha")
	require.NoError(t, os.WriteFile(path, []byte("one\n%\ntwo\n"), 0o644))
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	// Write-back fails but selection still gets an in-memory index.
	ff, err := EnsureIndex(path, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 2, ff.RecordCount())
}

func TestLoadFiltersAndKeepsWeights(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", "tiny\n%\na slightly longer record here\n")
	beta := writeSource(t, dir, "beta", "ab\n")

	cat, err := Load(
		[]WeightedSource{
			{Path: alpha, Percent: 30, Explicit: true},
			{Path: beta},
		},
		LoadOptions{Filter: datfile.LengthFilter{Mode: datfile.FilterLong, Threshold: 10}},
	)
	require.NoError(t, err)

	// beta's only record is short, so the source drops out entirely.
	require.Len(t, cat.Sources, 1)
	require.Equal(t, alpha, cat.Sources[0].File.TextPath)
	require.True(t, cat.Sources[0].Explicit)
	require.Equal(t, []int{1}, cat.Sources[0].Candidates)
}

func TestLoadFailsWhenEverythingFiltered(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", "tiny\n")

	_, err := Load(
		[]WeightedSource{{Path: alpha}},
		LoadOptions{Filter: datfile.LengthFilter{Mode: datfile.FilterLong, Threshold: 1000}},
	)
	require.ErrorIs(t, err, ErrNoSources)
}
