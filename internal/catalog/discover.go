package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultSearchPath mirrors the directories fortune-mod probes when no
// sources are named, colon-separated.
const DefaultSearchPath = "/usr/share/fortune:/usr/local/share/fortune:/usr/share/games/fortunes:/usr/local/share/games/fortunes"

// EnvSearchPath overrides the default search path when set.
const EnvSearchPath = "FORTUNE_PATH"

// WeightedSource is one discovered corpus file with its share of any
// explicit percentage.
type WeightedSource struct {
	Path     string
	Percent  float64
	Explicit bool
}

// DiscoverOptions carries the offensive-filter policy and the search
// roots used when no specs are given.
type DiscoverOptions struct {
	// AllowAny admits offensive sources alongside regular ones (-a).
	AllowAny bool
	// OffensiveOnly restricts discovery to offensive sources (-o).
	OffensiveOnly bool
	// SearchPath lists default directories; empty falls back to
	// EnvSearchPath then DefaultSearchPath.
	SearchPath []string
	// Lang supplies the locale string for subdirectory probing; empty
	// reads the LANG environment variable.
	Lang string

	Logger *zap.Logger
}

// Discover resolves specs into concrete corpus files. Directories
// expand to their immediate regular files with any explicit percentage
// split evenly; the token "all" expands to every default directory;
// empty specs probe the default search path and LANG locale
// subdirectories. Fails with ErrNoSources when nothing usable remains.
func Discover(specs []Spec, opts DiscoverOptions) ([]WeightedSource, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OffensiveOnly && opts.AllowAny {
		log.Warn("both offensive-only and allow-any are set; offensive-only wins")
	}

	resolved := specs
	if len(resolved) == 0 {
		defaults, err := defaultSpecs(opts)
		if err != nil {
			return nil, err
		}
		resolved = defaults
	}

	var out []WeightedSource
	for _, spec := range resolved {
		paths, err := resolveSpecPaths(spec.Path, opts)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			log.Debug("no sources for spec", zap.String("path", spec.Path))
			continue
		}
		share := spec.Percent / float64(len(paths))
		for _, path := range paths {
			if !admits(path, opts) {
				log.Debug("offensive filter skipped source", zap.String("path", path))
				continue
			}
			ws := WeightedSource{Path: path}
			if spec.Explicit {
				ws.Percent = share
				ws.Explicit = true
			}
			out = append(out, ws)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoSources
	}
	log.Debug("source discovery completed", zap.Int("sources", len(out)))
	return out, nil
}

// IsOffensive reports whether the corpus follows the offensive naming
// convention (a "-o" filename suffix, as shipped by fortune-mod).
func IsOffensive(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "-o")
}

func admits(path string, opts DiscoverOptions) bool {
	offensive := IsOffensive(path)
	if opts.OffensiveOnly {
		return offensive
	}
	if offensive {
		return opts.AllowAny
	}
	return true
}

func searchDirs(opts DiscoverOptions) []string {
	if len(opts.SearchPath) > 0 {
		return opts.SearchPath
	}
	raw := os.Getenv(EnvSearchPath)
	if raw == "" {
		raw = DefaultSearchPath
	}
	var dirs []string
	for _, entry := range strings.Split(raw, ":") {
		if entry != "" {
			dirs = append(dirs, entry)
		}
	}
	return dirs
}

// defaultSpecs probes locale subdirectories of each search root before
// the root itself, keeping every directory that exists.
func defaultSpecs(opts DiscoverOptions) ([]Spec, error) {
	var out []Spec
	for _, dir := range searchDirs(opts) {
		for _, locale := range localeCandidates(dir, opts) {
			if isDir(locale) {
				out = append(out, Spec{Path: locale})
			}
		}
		if isDir(dir) {
			out = append(out, Spec{Path: dir})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no default fortune directories exist", ErrNoSources)
	}
	return out, nil
}

// localeCandidates derives "en_US" and "en" style subdirectories from
// the LANG value, dropping any ".UTF-8" charset suffix.
func localeCandidates(baseDir string, opts DiscoverOptions) []string {
	lang := opts.Lang
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	var out []string
	for _, entry := range strings.Split(lang, ":") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		normalized := entry
		if dot := strings.IndexByte(normalized, '.'); dot >= 0 {
			normalized = normalized[:dot]
		}
		if normalized == "" {
			continue
		}
		out = append(out, filepath.Join(baseDir, normalized))
		if under := strings.IndexByte(normalized, '_'); under > 0 {
			out = append(out, filepath.Join(baseDir, normalized[:under]))
		} else if len(normalized) > 2 {
			out = append(out, filepath.Join(baseDir, normalized[:2]))
		}
	}
	return out
}

func resolveSpecPaths(specPath string, opts DiscoverOptions) ([]string, error) {
	if specPath == "all" {
		seen := map[string]bool{}
		var all []string
		for _, dir := range searchDirs(opts) {
			if !isDir(dir) {
				continue
			}
			files, err := collectCorpusFiles(dir)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				if !seen[f] {
					seen[f] = true
					all = append(all, f)
				}
			}
		}
		sort.Strings(all)
		return all, nil
	}

	info, err := os.Stat(specPath)
	switch {
	case err == nil && info.IsDir():
		return collectCorpusFiles(specPath)
	case err == nil:
		return []string{specPath}, nil
	}

	// A named source that does not exist may still resolve through the
	// offensive naming convention ("tips" <-> "tips-o").
	if alt := offensiveAlternate(specPath); alt != "" {
		if fi, aerr := os.Stat(alt); aerr == nil && !fi.IsDir() {
			return []string{alt}, nil
		}
	}
	return nil, nil
}

func offensiveAlternate(path string) string {
	name := filepath.Base(path)
	if stripped, ok := strings.CutSuffix(name, "-o"); ok {
		return filepath.Join(filepath.Dir(path), stripped)
	}
	return filepath.Join(filepath.Dir(path), name+"-o")
}

// collectCorpusFiles lists the immediate corpus files of a directory,
// skipping dotfiles, index sidecars, and .u8 recode companions.
func collectCorpusFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading fortune directory %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".dat") || strings.HasSuffix(name, ".u8") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
