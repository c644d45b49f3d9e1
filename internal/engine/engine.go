// Package engine turns a loaded catalog and a selection request into
// one fortune, an enumeration of regex matches, or a probability
// listing. All randomness flows through the injected randsrc.Source,
// so the engine itself is pure and reproducible.
package engine

import (
	"errors"
	"fmt"
	"regexp"

	"gofortune/internal/catalog"
	"gofortune/internal/datfile"
	"gofortune/internal/randsrc"
)

var (
	// ErrNoMatch means filters or the pattern eliminated every record.
	ErrNoMatch = errors.New("no fortune matches the request")
	// ErrInvalidPattern means the -m regex did not compile.
	ErrInvalidPattern = errors.New("invalid match pattern")
)

// probScale is the integer domain stage-1 draws are taken from. The
// draw d maps to the marker probScale-1-d, so a hard-coded zero draw
// lands on the last unit of probability mass: over {A:30%, B:70%} it
// selects B. This mapping is pinned by TestSelectOneZeroDrawPicksLastBucket.
const probScale = 1 << 24

// Request configures one selection or enumeration.
type Request struct {
	EqualProb  bool
	Pattern    string
	IgnoreCase bool
}

// Selection is one chosen fortune.
type Selection struct {
	SourcePath string
	Index      int
	Text       string
}

// Match is one record produced by EnumerateMatches, in catalog order.
type Match struct {
	SourcePath string
	Index      int
	Text       string
}

// SourceProbability pairs a source path with its normalized share,
// expressed as a percentage. Display rounding is the caller's job.
type SourceProbability struct {
	Path    string
	Percent float64
}

// Normalize computes per-source probabilities summing to 1. Explicit
// percentages are taken as-is; the remaining mass is split across
// unweighted sources by candidate count, or equally under
// equal-probability mode.
func Normalize(cat *catalog.Catalog, equalProb bool) ([]float64, error) {
	if cat == nil || len(cat.Sources) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", catalog.ErrNoSources)
	}

	explicitTotal := 0.0
	for _, src := range cat.Sources {
		if src.Explicit {
			explicitTotal += src.Percent
		}
	}
	if explicitTotal > 100.0+1e-9 {
		return nil, fmt.Errorf("%w: got %.3f%%", catalog.ErrWeightOverflow, explicitTotal)
	}
	remaining := 100.0 - explicitTotal
	if remaining < 0 {
		remaining = 0
	}

	baseTotal := 0.0
	bases := make([]float64, len(cat.Sources))
	for i, src := range cat.Sources {
		if src.Explicit {
			continue
		}
		if equalProb {
			bases[i] = 1
		} else {
			bases[i] = float64(len(src.Candidates))
		}
		baseTotal += bases[i]
	}

	probs := make([]float64, len(cat.Sources))
	total := 0.0
	for i, src := range cat.Sources {
		switch {
		case src.Explicit:
			probs[i] = src.Percent
		case baseTotal > 0:
			probs[i] = remaining * bases[i] / baseTotal
		}
		total += probs[i]
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: all source probabilities are zero", catalog.ErrNoSources)
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs, nil
}

// CompilePattern builds the -m regex, wrapping compile failures in
// ErrInvalidPattern so the CLI can reject the pattern before any
// sampling happens.
func CompilePattern(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// SelectOne performs the two-stage draw: a weighted source pick over
// the normalized probability table, then a uniform pick among that
// source's eligible records. A source whose eligible set is empty for
// this request has its weight zeroed and the source draw reruns, at
// most once per source; exhaustion is ErrNoMatch.
func SelectOne(cat *catalog.Catalog, req Request, rng randsrc.Source) (Selection, error) {
	probs, err := Normalize(cat, req.EqualProb)
	if err != nil {
		return Selection{}, err
	}

	var re *regexp.Regexp
	if req.Pattern != "" {
		re, err = CompilePattern(req.Pattern, req.IgnoreCase)
		if err != nil {
			return Selection{}, err
		}
	}

	weights := make([]float64, len(probs))
	copy(weights, probs)

	for attempt := 0; attempt <= len(cat.Sources); attempt++ {
		idx, ok := pickSource(weights, rng)
		if !ok {
			break
		}
		src := cat.Sources[idx]
		eligible, err := eligibleRecords(src, re)
		if err != nil {
			return Selection{}, err
		}
		if len(eligible) == 0 {
			weights[idx] = 0
			continue
		}
		pos := int(rng.Uint32Below(uint32(len(eligible))))
		recIdx := eligible[pos]
		text, err := recordText(src, recIdx)
		if err != nil {
			return Selection{}, err
		}
		return Selection{SourcePath: src.File.TextPath, Index: recIdx, Text: text}, nil
	}
	return Selection{}, ErrNoMatch
}

// EnumerateMatches walks the catalog in source order, then offset
// order, returning every record the compiled pattern matches. The
// result is a pure function of the catalog, so re-running yields the
// same sequence.
func EnumerateMatches(cat *catalog.Catalog, req Request) ([]Match, error) {
	re, err := CompilePattern(req.Pattern, req.IgnoreCase)
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, src := range cat.Sources {
		for _, recIdx := range src.Candidates {
			text, err := recordText(src, recIdx)
			if err != nil {
				return nil, err
			}
			if re.MatchString(text) {
				out = append(out, Match{SourcePath: src.File.TextPath, Index: recIdx, Text: text})
			}
		}
	}
	return out, nil
}

// ListProbabilities reports each source's normalized share as a
// percentage, preserving full precision.
func ListProbabilities(cat *catalog.Catalog, equalProb bool) ([]SourceProbability, error) {
	probs, err := Normalize(cat, equalProb)
	if err != nil {
		return nil, err
	}
	out := make([]SourceProbability, len(cat.Sources))
	for i, src := range cat.Sources {
		out[i] = SourceProbability{Path: src.File.TextPath, Percent: probs[i] * 100}
	}
	return out, nil
}

// pickSource does the stage-1 cumulative lookup over the weight table
// using the probScale mapping. It reports false when no weight
// remains.
func pickSource(weights []float64, rng randsrc.Source) (int, bool) {
	total := 0.0
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	if last < 0 {
		return 0, false
	}

	d := rng.Uint32Below(probScale)
	marker := float64(probScale-1-d) / float64(probScale) * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if marker < w {
			return i, true
		}
		marker -= w
	}
	return last, true
}

// eligibleRecords filters a source's candidates by the pattern.
// Candidates already satisfy the length filter from catalog load.
// Rotated sources are decoded before matching so patterns run against
// readable text.
func eligibleRecords(src catalog.Source, re *regexp.Regexp) ([]int, error) {
	if re == nil {
		return src.Candidates, nil
	}
	var out []int
	for _, recIdx := range src.Candidates {
		text, err := recordText(src, recIdx)
		if err != nil {
			return nil, err
		}
		if re.MatchString(text) {
			out = append(out, recIdx)
		}
	}
	return out, nil
}

// recordText fetches a record, applying ROT13 when the source index
// was built with FlagRotated.
func recordText(src catalog.Source, recIdx int) (string, error) {
	text, err := src.File.Text(recIdx)
	if err != nil {
		return "", err
	}
	if src.File.Dat.Header.Flags&datfile.FlagRotated != 0 {
		text = rot13(text)
	}
	return text, nil
}

func rot13(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = 'a' + (c-'a'+13)%26
		case c >= 'A' && c <= 'Z':
			b[i] = 'A' + (c-'A'+13)%26
		}
	}
	return string(b)
}
