// Package catalog discovers fortune corpora, parses percent-weight
// prefixes, and loads each source together with a valid .dat index
// (regenerating stale or missing ones). The selection engine consumes
// the resulting Catalog without knowing any discovery policy.
package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Taxonomy errors surfaced to the CLI.
var (
	ErrInvalidWeight  = errors.New("invalid percentage weight")
	ErrWeightOverflow = errors.New("explicit percentages exceed 100%")
	ErrNoSources      = errors.New("no fortune sources found")
)

// Spec is one raw path token with an optional explicit percentage.
type Spec struct {
	Path     string
	Percent  float64
	Explicit bool
}

// ParseSpecs turns CLI source tokens into Specs. A token shaped
// "N%path" carries an inline weight; a bare "N%" token weights the
// following token. The digits (and optional dot) must be immediately
// followed by '%' and parse into 0..=100, otherwise ErrInvalidWeight.
// Explicit percentages summing past 100 fail with ErrWeightOverflow.
func ParseSpecs(tokens []string) ([]Spec, error) {
	var out []Spec
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		pct, rest, explicit, err := parsePercentPrefix(token)
		if err != nil {
			return nil, err
		}
		if !explicit {
			out = append(out, Spec{Path: token})
			continue
		}
		if rest == "" {
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%w: missing path after %q", ErrInvalidWeight, token)
			}
			i++
			rest = tokens[i]
		}
		out = append(out, Spec{Path: rest, Percent: pct, Explicit: true})
	}

	total := 0.0
	for _, spec := range out {
		if spec.Explicit {
			total += spec.Percent
		}
	}
	if total > 100.0+1e-9 {
		return nil, fmt.Errorf("%w: got %.3f%%", ErrWeightOverflow, total)
	}
	return out, nil
}

// parsePercentPrefix splits "N%rest". Tokens without a numeric prefix
// before the first '%' are plain paths, not errors, so file names
// containing '%' elsewhere keep working.
func parsePercentPrefix(token string) (pct float64, rest string, explicit bool, err error) {
	idx := strings.IndexByte(token, '%')
	if idx <= 0 {
		return 0, "", false, nil
	}
	lhs := token[:idx]
	for _, r := range lhs {
		if (r < '0' || r > '9') && r != '.' {
			return 0, "", false, nil
		}
	}
	pct, perr := strconv.ParseFloat(lhs, 64)
	if perr != nil {
		return 0, "", false, fmt.Errorf("%w: %q", ErrInvalidWeight, lhs)
	}
	if pct < 0 || pct > 100 {
		return 0, "", false, fmt.Errorf("%w: %v%% is outside 0..=100", ErrInvalidWeight, pct)
	}
	return pct, strings.TrimSpace(token[idx+1:]), true, nil
}
