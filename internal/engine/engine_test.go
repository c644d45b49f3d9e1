package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gofortune/internal/catalog"
	"gofortune/internal/datfile"
	"gofortune/internal/randsrc"
	"gofortune/internal/strfile"
)

// writeSource writes an indexed corpus file and returns its path.
func writeSource(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	dat, _, err := strfile.Build([]byte(text), strfile.Options{})
	require.NoError(t, err)
	require.NoError(t, dat.WriteFile(datfile.DatPath(path)))
	return path
}

// loadCatalog builds a catalog over the given weighted sources.
func loadCatalog(t *testing.T, sources []catalog.WeightedSource) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(sources, catalog.LoadOptions{})
	require.NoError(t, err)
	return cat
}

// corpusOf builds delimiter-separated text with n distinct records.
func corpusOf(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "record number %03d\n", i)
		if i+1 < n {
			b.WriteString("%\n")
		}
	}
	return b.String()
}

func twoSourceCatalog(t *testing.T) (*catalog.Catalog, string, string) {
	t.Helper()
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", "alpha one\n%\nalpha two\n")
	beta := writeSource(t, dir, "beta", "beta one\n%\nbeta two\n")
	cat := loadCatalog(t, []catalog.WeightedSource{
		{Path: alpha, Percent: 30, Explicit: true},
		{Path: beta, Percent: 70, Explicit: true},
	})
	return cat, alpha, beta
}

func TestNormalizeSumsToOne(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", corpusOf(3))
	beta := writeSource(t, dir, "beta", corpusOf(5))
	gamma := writeSource(t, dir, "gamma", corpusOf(2))

	cat := loadCatalog(t, []catalog.WeightedSource{
		{Path: alpha, Percent: 25, Explicit: true},
		{Path: beta},
		{Path: gamma},
	})

	for _, equal := range []bool{false, true} {
		probs, err := Normalize(cat, equal)
		require.NoError(t, err)

		sum := 0.0
		for _, p := range probs {
			sum += p
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestNormalizeSplitsRemainderByCandidateCount(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", corpusOf(3))
	beta := writeSource(t, dir, "beta", corpusOf(1))

	cat := loadCatalog(t, []catalog.WeightedSource{
		{Path: alpha},
		{Path: beta, Percent: 10, Explicit: true},
	})

	probs, err := Normalize(cat, false)
	require.NoError(t, err)
	require.InDelta(t, 0.90, probs[0], 1e-9)
	require.InDelta(t, 0.10, probs[1], 1e-9)
}

func TestNormalizeEqualModeIgnoresCandidateCounts(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", corpusOf(1))
	beta := writeSource(t, dir, "beta", corpusOf(50))

	cat := loadCatalog(t, []catalog.WeightedSource{{Path: alpha}, {Path: beta}})

	probs, err := Normalize(cat, true)
	require.NoError(t, err)
	require.InDelta(t, 0.5, probs[0], 1e-9)
	require.InDelta(t, 0.5, probs[1], 1e-9)
}

func TestNormalizeRejectsOverflow(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", corpusOf(1))
	beta := writeSource(t, dir, "beta", corpusOf(1))

	cat := loadCatalog(t, []catalog.WeightedSource{
		{Path: alpha, Percent: 70, Explicit: true},
		{Path: beta, Percent: 60, Explicit: true},
	})

	_, err := Normalize(cat, false)
	require.ErrorIs(t, err, catalog.ErrWeightOverflow)
}

// TestSelectOneZeroDrawPicksLastBucket pins the stage-1 mapping: a
// hard-coded zero draw maps to the last unit of probability mass, so
// over {alpha:30%, beta:70%} it always lands in beta.
func TestSelectOneZeroDrawPicksLastBucket(t *testing.T) {
	cat, _, beta := twoSourceCatalog(t)

	for i := 0; i < 5; i++ {
		sel, err := SelectOne(cat, Request{}, randsrc.HardCoded(0))
		require.NoError(t, err)
		require.Equal(t, beta, sel.SourcePath)
		// Stage 2 under a zero draw picks the first record.
		require.Equal(t, 0, sel.Index)
		require.Equal(t, "beta one\n", sel.Text)
	}
}

func TestSelectOneIsUniformWithinSource(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", corpusOf(10))
	cat := loadCatalog(t, []catalog.WeightedSource{{Path: alpha}})

	rng := randsrc.Seeded(7)
	counts := make(map[int]int)
	const draws = 20000
	for i := 0; i < draws; i++ {
		sel, err := SelectOne(cat, Request{}, rng)
		require.NoError(t, err)
		counts[sel.Index]++
	}
	for idx := 0; idx < 10; idx++ {
		freq := float64(counts[idx]) / draws
		require.InDelta(t, 0.1, freq, 0.02, "record %d drawn with frequency %.3f", idx, freq)
	}
}

// TestEqualProbabilityFrequencies is the statistical property from the
// engine contract: under -e, sources with wildly different sizes are
// still drawn uniformly.
func TestEqualProbabilityFrequencies(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeSource(t, dir, "tiny", corpusOf(1)),
		writeSource(t, dir, "medium", corpusOf(10)),
		writeSource(t, dir, "large", corpusOf(100)),
	}
	cat := loadCatalog(t, []catalog.WeightedSource{
		{Path: paths[0]}, {Path: paths[1]}, {Path: paths[2]},
	})

	rng := randsrc.Seeded(11)
	counts := make(map[string]int)
	const draws = 30000
	for i := 0; i < draws; i++ {
		sel, err := SelectOne(cat, Request{EqualProb: true}, rng)
		require.NoError(t, err)
		counts[sel.SourcePath]++
	}

	for _, path := range paths {
		freq := float64(counts[path]) / draws
		require.InDelta(t, 1.0/3, freq, 0.03, "source %s drawn with frequency %.3f", path, freq)
	}
}

func TestSelectOneRetriesSourcesWithoutMatches(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", "needle in alpha\n%\nalpha filler\n")
	beta := writeSource(t, dir, "beta", "beta one\n%\nbeta two\n")
	cat := loadCatalog(t, []catalog.WeightedSource{
		{Path: alpha, Percent: 30, Explicit: true},
		{Path: beta, Percent: 70, Explicit: true},
	})

	// The zero draw lands in beta, which has no match; the engine must
	// zero beta's weight and retry into alpha.
	sel, err := SelectOne(cat, Request{Pattern: "needle"}, randsrc.HardCoded(0))
	require.NoError(t, err)
	require.Equal(t, alpha, sel.SourcePath)
	require.Equal(t, "needle in alpha\n", sel.Text)
}

func TestSelectOneUnmatchablePatternFails(t *testing.T) {
	cat, _, _ := twoSourceCatalog(t)
	_, err := SelectOne(cat, Request{Pattern: "zzz-no-such-record"}, randsrc.Seeded(1))
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestSelectOneInvalidPatternFailsBeforeSampling(t *testing.T) {
	cat, _, _ := twoSourceCatalog(t)
	_, err := SelectOne(cat, Request{Pattern: "("}, randsrc.Seeded(1))
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestCompilePatternCaseInsensitive(t *testing.T) {
	re, err := CompilePattern("NEEDLE", true)
	require.NoError(t, err)
	require.True(t, re.MatchString("a needle in a haystack"))

	re, err = CompilePattern("NEEDLE", false)
	require.NoError(t, err)
	require.False(t, re.MatchString("a needle in a haystack"))
}

func TestEnumerateMatchesOrderedAndRestartable(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", "match a1\n%\nskip\n%\nmatch a2\n")
	beta := writeSource(t, dir, "beta", "match b1\n")
	cat := loadCatalog(t, []catalog.WeightedSource{{Path: alpha}, {Path: beta}})

	first, err := EnumerateMatches(cat, Request{Pattern: "match"})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Equal(t, "match a1\n", first[0].Text)
	require.Equal(t, "match a2\n", first[1].Text)
	require.Equal(t, "match b1\n", first[2].Text)

	second, err := EnumerateMatches(cat, Request{Pattern: "match"})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnumerateMatchesNeverReturnsNonMatching(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", "yes match\n%\nnope\n")
	cat := loadCatalog(t, []catalog.WeightedSource{{Path: alpha}})

	matches, err := EnumerateMatches(cat, Request{Pattern: "match"})
	require.NoError(t, err)
	for _, m := range matches {
		require.Contains(t, m.Text, "match")
	}
	require.Len(t, matches, 1)
}

func TestListProbabilitiesExplicitAndImplicit(t *testing.T) {
	dir := t.TempDir()
	alpha := writeSource(t, dir, "alpha", corpusOf(3))
	beta := writeSource(t, dir, "beta", corpusOf(1))
	cat := loadCatalog(t, []catalog.WeightedSource{
		{Path: alpha},
		{Path: beta, Percent: 10, Explicit: true},
	})

	probs, err := ListProbabilities(cat, false)
	require.NoError(t, err)
	require.Len(t, probs, 2)
	require.Equal(t, alpha, probs[0].Path)
	require.InDelta(t, 90.0, probs[0].Percent, 1e-9)
	require.Equal(t, beta, probs[1].Path)
	require.InDelta(t, 10.0, probs[1].Percent, 1e-9)
}

func TestRotatedSourceIsDecoded(t *testing.T) {
	dir := t.TempDir()
	plain := "secret wisdom\n"
	path := filepath.Join(dir, "rotated")
	require.NoError(t, os.WriteFile(path, []byte(rot13(plain)), 0o644))

	dat, _, err := strfile.Build([]byte(rot13(plain)), strfile.Options{})
	require.NoError(t, err)
	dat.Header.Flags |= datfile.FlagRotated
	require.NoError(t, dat.WriteFile(datfile.DatPath(path)))

	cat := loadCatalog(t, []catalog.WeightedSource{{Path: path}})

	sel, err := SelectOne(cat, Request{}, randsrc.HardCoded(0))
	require.NoError(t, err)
	require.Equal(t, plain, sel.Text)

	// Regex matching runs against the decoded text.
	matches, err := EnumerateMatches(cat, Request{Pattern: "secret"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestRot13(t *testing.T) {
	require.Equal(t, "Uryyb, Jbeyq!", rot13("Hello, World!"))
	require.Equal(t, "Hello, World!", rot13(rot13("Hello, World!")))
}
