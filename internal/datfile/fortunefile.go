package datfile

import (
	"bytes"
	"fmt"
	"os"
)

// FilterMode selects which record lengths a LengthFilter accepts.
type FilterMode int

const (
	FilterAny FilterMode = iota
	FilterShort
	FilterLong
)

// LengthFilter restricts records by delimiter-exclusive byte length.
// The threshold is supplied by the caller (the -n flag or config); the
// engine never derives it from the corpus.
type LengthFilter struct {
	Mode      FilterMode
	Threshold int
}

// Accepts reports whether a record of n bytes passes the filter.
// Short keeps records up to and including the threshold, Long keeps
// the strict complement.
func (f LengthFilter) Accepts(n int) bool {
	switch f.Mode {
	case FilterShort:
		return n <= f.Threshold
	case FilterLong:
		return n > f.Threshold
	default:
		return true
	}
}

// RecordSpan is a half-open byte range [Start, End) within the text.
type RecordSpan struct {
	Start int
	End   int
}

// FortuneFile is an opened corpus: the text bytes plus its decoded
// index, validated so every offset lands inside the text.
type FortuneFile struct {
	TextPath string
	DatPath  string
	Dat      File
	text     []byte
}

// Open reads the fortune text at textPath together with its sidecar
// .dat index.
func Open(textPath string) (*FortuneFile, error) {
	datPath := DatPath(textPath)
	dat, err := ReadFile(datPath)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(textPath)
	if err != nil {
		return nil, fmt.Errorf("reading fortune text %s: %w", textPath, err)
	}
	return New(textPath, dat, text)
}

// New builds a FortuneFile from an already-loaded index and text,
// validating the offsets. The catalog uses this after regenerating a
// missing or stale index in memory.
func New(textPath string, dat File, text []byte) (*FortuneFile, error) {
	ff := &FortuneFile{
		TextPath: textPath,
		DatPath:  DatPath(textPath),
		Dat:      dat,
		text:     text,
	}
	for _, off := range dat.Offsets {
		if int64(off) > int64(len(text)) {
			return nil, fmt.Errorf("%w: offset %d exceeds %d text bytes in %s", ErrCorruptIndex, off, len(text), textPath)
		}
	}
	return ff, nil
}

// RecordCount returns the number of indexed records.
func (ff *FortuneFile) RecordCount() int {
	return len(ff.Dat.Offsets)
}

// Size returns the corpus text length in bytes.
func (ff *FortuneFile) Size() int {
	return len(ff.text)
}

// Span returns the byte range of record i, ending at the next
// delimiter line or end of file.
func (ff *FortuneFile) Span(i int) (RecordSpan, error) {
	if i < 0 || i >= len(ff.Dat.Offsets) {
		return RecordSpan{}, fmt.Errorf("record index %d out of range for %s", i, ff.TextPath)
	}
	start := int(ff.Dat.Offsets[i])
	end := ff.delimiterFrom(start)
	if end < 0 {
		end = len(ff.text)
	}
	if start > end {
		return RecordSpan{}, fmt.Errorf("%w: record %d span [%d, %d) in %s", ErrCorruptIndex, i, start, end, ff.TextPath)
	}
	return RecordSpan{Start: start, End: end}, nil
}

// Record returns record i's bytes with the trailing delimiter line
// excluded.
func (ff *FortuneFile) Record(i int) ([]byte, error) {
	span, err := ff.Span(i)
	if err != nil {
		return nil, err
	}
	return ff.text[span.Start:span.End], nil
}

// Text returns record i decoded as a string, replacing invalid UTF-8
// rather than failing; fortune corpora predate any encoding guarantee.
func (ff *FortuneFile) Text(i int) (string, error) {
	b, err := ff.Record(i)
	if err != nil {
		return "", err
	}
	return string(bytes.ToValidUTF8(b, []byte("�"))), nil
}

// OffsetBounds returns the offset table with the text length appended,
// so bounds[i] and bounds[i+1] bracket record i including its trailing
// delimiter line.
func (ff *FortuneFile) OffsetBounds() []uint32 {
	bounds := make([]uint32, 0, len(ff.Dat.Offsets)+1)
	bounds = append(bounds, ff.Dat.Offsets...)
	bounds = append(bounds, uint32(len(ff.text)))
	return bounds
}

// CandidateIndices returns the record indices whose byte lengths pass
// the filter, in index order.
func (ff *FortuneFile) CandidateIndices(filter LengthFilter) ([]int, error) {
	var out []int
	for i := 0; i < ff.RecordCount(); i++ {
		b, err := ff.Record(i)
		if err != nil {
			return nil, err
		}
		if filter.Accepts(len(b)) {
			out = append(out, i)
		}
	}
	return out, nil
}

// delimiterFrom scans forward from start for a line holding only the
// delimiter byte (tolerating a trailing \r) and returns its byte
// position, or -1 when no delimiter line follows.
func (ff *FortuneFile) delimiterFrom(start int) int {
	cursor := start
	for cursor < len(ff.text) {
		lineEnd := cursor + len(ff.text[cursor:])
		if nl := bytes.IndexByte(ff.text[cursor:], '\n'); nl >= 0 {
			lineEnd = cursor + nl
		}
		contentEnd := lineEnd
		if contentEnd > cursor && ff.text[contentEnd-1] == '\r' {
			contentEnd--
		}
		if contentEnd-cursor == 1 && ff.text[cursor] == ff.Dat.Header.Delim {
			return cursor
		}
		if lineEnd >= len(ff.text) {
			break
		}
		cursor = lineEnd + 1
	}
	return -1
}
