package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gofortune/internal/datfile"
	"gofortune/internal/strfile"
)

// writeSource writes a small indexed corpus file under dir.
func writeSource(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	dat, _, err := strfile.Build([]byte(text), strfile.Options{})
	require.NoError(t, err)
	require.NoError(t, dat.WriteFile(datfile.DatPath(path)))
	return path
}

func TestDiscoverSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "alpha", "one\n%\ntwo\n")

	found, err := Discover([]Spec{{Path: path}}, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, path, found[0].Path)
	require.False(t, found[0].Explicit)
}

func TestDiscoverDirectoryListsFiles(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "alpha", "one\n%\ntwo\n")
	writeSource(t, dir, "beta", "three\n")
	// Sidecars and hidden files never count as corpora.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.u8"), []byte("x"), 0o644))

	found, err := Discover([]Spec{{Path: dir}}, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, filepath.Join(dir, "alpha"), found[0].Path)
	require.Equal(t, filepath.Join(dir, "beta"), found[1].Path)
}

func TestDiscoverSplitsDirectoryPercentEvenly(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "alpha", "one\n")
	writeSource(t, dir, "beta", "two\n")

	found, err := Discover([]Spec{{Path: dir, Percent: 50, Explicit: true}}, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	for _, ws := range found {
		require.True(t, ws.Explicit)
		require.InDelta(t, 25.0, ws.Percent, 1e-9)
	}
}

func TestDiscoverOffensiveFiltering(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "clean", "one\n")
	writeSource(t, dir, "spicy-o", "two\n")

	byPath := func(found []WeightedSource) []string {
		var names []string
		for _, ws := range found {
			names = append(names, filepath.Base(ws.Path))
		}
		return names
	}

	found, err := Discover([]Spec{{Path: dir}}, DiscoverOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"clean"}, byPath(found))

	found, err = Discover([]Spec{{Path: dir}}, DiscoverOptions{AllowAny: true})
	require.NoError(t, err)
	require.Equal(t, []string{"clean", "spicy-o"}, byPath(found))

	found, err = Discover([]Spec{{Path: dir}}, DiscoverOptions{OffensiveOnly: true})
	require.NoError(t, err)
	require.Equal(t, []string{"spicy-o"}, byPath(found))
}

func TestDiscoverOffensiveAlternate(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "tips-o", "two\n")

	// Asking for "tips" resolves the offensive sibling when -o allows.
	found, err := Discover(
		[]Spec{{Path: filepath.Join(dir, "tips")}},
		DiscoverOptions{OffensiveOnly: true},
	)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, filepath.Join(dir, "tips-o"), found[0].Path)
}

func TestDiscoverDefaultSearchPath(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "wisdom", "one\n%\ntwo\n")

	found, err := Discover(nil, DiscoverOptions{SearchPath: []string{root}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, filepath.Join(root, "wisdom"), found[0].Path)
}

func TestDiscoverLocaleSubdirectoryFirst(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "base", "one\n")
	localeDir := filepath.Join(root, "de")
	require.NoError(t, os.Mkdir(localeDir, 0o755))
	writeSource(t, localeDir, "weisheit", "zwei\n")

	found, err := Discover(nil, DiscoverOptions{
		SearchPath: []string{root},
		Lang:       "de_DE.UTF-8",
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(found), 2)
	// Locale candidates come before the base directory.
	require.Equal(t, filepath.Join(localeDir, "weisheit"), found[0].Path)
}

func TestDiscoverAllToken(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "alpha", "one\n")
	writeSource(t, root, "beta", "two\n")

	found, err := Discover([]Spec{{Path: "all"}}, DiscoverOptions{SearchPath: []string{root}})
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestDiscoverEmptyFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Discover([]Spec{{Path: filepath.Join(dir, "missing")}}, DiscoverOptions{})
	require.ErrorIs(t, err, ErrNoSources)
}

func TestIsOffensive(t *testing.T) {
	require.True(t, IsOffensive("/corpus/limerick-o"))
	require.False(t, IsOffensive("/corpus/limerick"))
	require.False(t, IsOffensive("/corpus-o/limerick"))
}
