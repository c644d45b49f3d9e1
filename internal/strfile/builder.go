// Package strfile builds .dat indexes from fortune text: it scans for
// delimiter-only lines, records the start offset of each record, and
// emits a datfile.File ready to serialize.
package strfile

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"gofortune/internal/datfile"
	"gofortune/internal/randsrc"
)

// Options controls a build.
type Options struct {
	// Delim is the record separator byte. Defaults to '%' when zero.
	Delim byte
	// Randomize shuffles the offset table and sets FlagRandom.
	Randomize bool
	// Order sorts records lexicographically; the sorted table drops
	// FlagOrdered since it no longer preserves file order.
	Order bool
	// AllowEmpty keeps zero-length records instead of dropping them.
	AllowEmpty bool
	// Rand supplies the shuffle randomness; nil means the system source.
	Rand randsrc.Source
}

// Stats summarizes a build for the strfile CLI report.
type Stats struct {
	Records  int
	Shortest int
	Longest  int
}

var errConflictingOrder = errors.New("randomize and order cannot be combined")

// ParseRecordSpans splits input into record byte ranges. A line whose
// content is exactly the delimiter byte (a trailing \r is tolerated)
// separates records; text after the final delimiter is its own record,
// and a file ending in a delimiter line contributes no empty tail.
func ParseRecordSpans(input []byte, delim byte, allowEmpty bool) []datfile.RecordSpan {
	var out []datfile.RecordSpan
	cursor := 0
	start := 0

	for cursor < len(input) {
		lineEnd := len(input)
		if nl := bytes.IndexByte(input[cursor:], '\n'); nl >= 0 {
			lineEnd = cursor + nl
		}
		contentEnd := lineEnd
		if contentEnd > cursor && input[contentEnd-1] == '\r' {
			contentEnd--
		}

		if contentEnd-cursor == 1 && input[cursor] == delim {
			if allowEmpty || cursor > start {
				out = append(out, datfile.RecordSpan{Start: start, End: cursor})
			}
			if lineEnd < len(input) {
				start = lineEnd + 1
			} else {
				start = lineEnd
			}
		}

		if lineEnd >= len(input) {
			cursor = lineEnd
			break
		}
		cursor = lineEnd + 1
	}

	if allowEmpty || start < len(input) {
		out = append(out, datfile.RecordSpan{Start: start, End: len(input)})
	}
	return out
}

// Build scans input and produces the index plus build stats. Offsets
// follow file order (FlagOrdered) unless Order sorts records by
// content or Randomize permutes them (FlagRandom); permuted tables
// drop FlagOrdered so readers do not expect monotonic offsets.
func Build(input []byte, opts Options) (datfile.File, Stats, error) {
	if opts.Randomize && opts.Order {
		return datfile.File{}, Stats{}, errConflictingOrder
	}
	delim := opts.Delim
	if delim == 0 {
		delim = '%'
	}

	spans := ParseRecordSpans(input, delim, opts.AllowEmpty)
	if len(spans) == 0 {
		return datfile.File{}, Stats{}, fmt.Errorf("no fortune records found in %d input bytes", len(input))
	}

	shortest := spans[0].End - spans[0].Start
	longest := shortest
	for _, span := range spans[1:] {
		n := span.End - span.Start
		if n < shortest {
			shortest = n
		}
		if n > longest {
			longest = n
		}
	}

	ordered := make([]datfile.RecordSpan, len(spans))
	copy(ordered, spans)
	switch {
	case opts.Order:
		sort.Slice(ordered, func(i, j int) bool {
			return bytes.Compare(input[ordered[i].Start:ordered[i].End], input[ordered[j].Start:ordered[j].End]) < 0
		})
	case opts.Randomize:
		rng := opts.Rand
		if rng == nil {
			rng = randsrc.System()
		}
		shuffle(ordered, rng)
	}

	offsets := make([]uint32, len(ordered))
	for i, span := range ordered {
		if span.Start > int(^uint32(0)) {
			return datfile.File{}, Stats{}, fmt.Errorf("record offset %d exceeds the u32 STRFILE limit", span.Start)
		}
		offsets[i] = uint32(span.Start)
	}

	// A content-sorted table is permuted relative to the text, so it
	// must not claim file order.
	var flags uint32 = datfile.FlagOrdered
	switch {
	case opts.Order:
		flags = 0
	case opts.Randomize:
		flags = datfile.FlagRandom
	}

	dat := datfile.File{
		Header: datfile.Header{
			Version:  datfile.Version,
			NumStr:   uint32(len(offsets)),
			LongLen:  uint32(longest),
			ShortLen: uint32(shortest),
			Flags:    flags,
			Delim:    delim,
		},
		Offsets: offsets,
	}
	stats := Stats{Records: len(spans), Shortest: shortest, Longest: longest}
	return dat, stats, nil
}

// shuffle is a Fisher-Yates pass over the spans.
func shuffle(spans []datfile.RecordSpan, rng randsrc.Source) {
	for i := len(spans) - 1; i > 0; i-- {
		j := int(rng.Uint32Below(uint32(i + 1)))
		spans[i], spans[j] = spans[j], spans[i]
	}
}
