package catalog

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"gofortune/internal/datfile"
	"gofortune/internal/strfile"
)

// Source is one loaded corpus: its opened file, weight, and the record
// indices that survive the length filter.
type Source struct {
	File       *datfile.FortuneFile
	Percent    float64
	Explicit   bool
	Candidates []int
}

// Catalog is the ordered set of loaded sources for one invocation.
type Catalog struct {
	Sources []Source
}

// LoadOptions tunes catalog loading.
type LoadOptions struct {
	// Filter drops records outside the requested length band before
	// any selection happens.
	Filter datfile.LengthFilter
	// RebuildDelim is the delimiter used when an index must be
	// regenerated. Zero means '%'.
	RebuildDelim byte

	Logger *zap.Logger
}

// Load opens every discovered source, ensuring each has a usable
// index, and drops sources left with zero candidate records under the
// filter. An entirely empty result is ErrNoSources.
func Load(discovered []WeightedSource, opts LoadOptions) (*Catalog, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cat := &Catalog{}
	for _, ws := range discovered {
		ff, err := EnsureIndex(ws.Path, opts.RebuildDelim, log)
		if err != nil {
			return nil, err
		}
		candidates, err := ff.CandidateIndices(opts.Filter)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			log.Debug("source has no candidates under length filter", zap.String("path", ws.Path))
			continue
		}
		cat.Sources = append(cat.Sources, Source{
			File:       ff,
			Percent:    ws.Percent,
			Explicit:   ws.Explicit,
			Candidates: candidates,
		})
	}

	if len(cat.Sources) == 0 {
		return nil, fmt.Errorf("%w: every source was filtered out", ErrNoSources)
	}
	log.Debug("catalog loaded", zap.Int("sources", len(cat.Sources)))
	return cat, nil
}

// EnsureIndex opens textPath with a valid index. The sidecar .dat is
// used when it decodes cleanly and is at least as new as the text;
// otherwise the index is rebuilt in memory and written back on a
// best-effort basis. A failed write-back degrades to the in-memory
// index for this run instead of aborting.
func EnsureIndex(textPath string, rebuildDelim byte, log *zap.Logger) (*datfile.FortuneFile, error) {
	if log == nil {
		log = zap.NewNop()
	}
	text, err := os.ReadFile(textPath)
	if err != nil {
		return nil, fmt.Errorf("reading fortune text %s: %w", textPath, err)
	}

	datPath := datfile.DatPath(textPath)
	if dat, ok := loadFreshIndex(textPath, datPath, text, log); ok {
		return datfile.New(textPath, dat, text)
	}

	dat, _, err := strfile.Build(text, strfile.Options{Delim: rebuildDelim})
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", textPath, err)
	}
	if werr := dat.WriteFile(datPath); werr != nil {
		log.Warn("could not write regenerated index; continuing in memory",
			zap.String("path", datPath), zap.Error(werr))
	} else {
		log.Debug("regenerated index", zap.String("path", datPath))
	}
	return datfile.New(textPath, dat, text)
}

// loadFreshIndex returns the sidecar index when it is present, decodes
// cleanly, and is not older than the source text.
func loadFreshIndex(textPath, datPath string, text []byte, log *zap.Logger) (datfile.File, bool) {
	datInfo, err := os.Stat(datPath)
	if err != nil {
		return datfile.File{}, false
	}
	textInfo, err := os.Stat(textPath)
	if err == nil && datInfo.ModTime().Before(textInfo.ModTime()) {
		log.Debug("index is older than text; rebuilding", zap.String("path", datPath))
		return datfile.File{}, false
	}

	dat, err := datfile.ReadFile(datPath)
	if err != nil {
		if errors.Is(err, datfile.ErrCorruptIndex) {
			log.Warn("ignoring corrupt index", zap.String("path", datPath), zap.Error(err))
			return datfile.File{}, false
		}
		return datfile.File{}, false
	}
	for _, off := range dat.Offsets {
		if int(off) > len(text) {
			log.Warn("index offsets exceed text size; rebuilding", zap.String("path", datPath))
			return datfile.File{}, false
		}
	}
	return dat, true
}
