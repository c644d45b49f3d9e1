// Package datfile implements the STRFILE ".dat" sidecar index format:
// a fixed big-endian header followed by a table of byte offsets into
// the companion fortune text file. The format matches fortune-mod's
// strfile(1) output so indexes built by either tool are interchangeable.
package datfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Version is the STRFILE format revision written by this package.
const Version uint32 = 2

// HeaderSize is the fixed byte length of the on-disk header.
const HeaderSize = 24

// Header flag bits.
const (
	FlagRandom  uint32 = 0x1 // offset table was shuffled at build time
	FlagOrdered uint32 = 0x2 // offset table preserves file order
	FlagRotated uint32 = 0x4 // record text is ROT13-obfuscated
)

// ErrCorruptIndex reports a structurally invalid .dat file.
var ErrCorruptIndex = errors.New("corrupt fortune index")

// Header is the fixed-size record at the start of every .dat file.
// All multi-byte fields are stored in network byte order.
type Header struct {
	Version  uint32
	NumStr   uint32
	LongLen  uint32
	ShortLen uint32
	Flags    uint32
	Delim    byte
}

// File is a decoded .dat index: header plus one start offset per record.
type File struct {
	Header  Header
	Offsets []uint32
}

// Decode parses a .dat index from raw bytes. It fails with
// ErrCorruptIndex when the buffer is shorter than the header, when the
// declared record count implies an offset table longer than the
// remaining bytes, or when a table claiming file order (FlagOrdered)
// is not non-decreasing. Permuted tables — randomized or sorted by
// record content — do not carry FlagOrdered, so the monotonicity check
// does not apply to them.
func Decode(b []byte) (File, error) {
	if len(b) < HeaderSize {
		return File{}, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrCorruptIndex, len(b), HeaderSize)
	}

	h := Header{
		Version:  binary.BigEndian.Uint32(b[0:4]),
		NumStr:   binary.BigEndian.Uint32(b[4:8]),
		LongLen:  binary.BigEndian.Uint32(b[8:12]),
		ShortLen: binary.BigEndian.Uint32(b[12:16]),
		Flags:    binary.BigEndian.Uint32(b[16:20]),
		Delim:    b[20],
	}

	tableBytes := uint64(h.NumStr) * 4
	if uint64(len(b)-HeaderSize) < tableBytes {
		return File{}, fmt.Errorf("%w: header declares %d offsets but only %d table bytes remain", ErrCorruptIndex, h.NumStr, len(b)-HeaderSize)
	}

	offsets := make([]uint32, h.NumStr)
	for i := range offsets {
		start := HeaderSize + i*4
		offsets[i] = binary.BigEndian.Uint32(b[start : start+4])
	}

	if h.Flags&FlagOrdered != 0 {
		for i := 1; i < len(offsets); i++ {
			if offsets[i] < offsets[i-1] {
				return File{}, fmt.Errorf("%w: offset %d decreases at index %d", ErrCorruptIndex, offsets[i], i)
			}
		}
	}

	return File{Header: h, Offsets: offsets}, nil
}

// Encode serializes the index deterministically: the same header and
// offsets always produce identical bytes.
func (f File) Encode() ([]byte, error) {
	if int(f.Header.NumStr) != len(f.Offsets) {
		return nil, fmt.Errorf("%w: header numstr %d does not match %d offsets", ErrCorruptIndex, f.Header.NumStr, len(f.Offsets))
	}

	out := make([]byte, HeaderSize+len(f.Offsets)*4)
	binary.BigEndian.PutUint32(out[0:4], f.Header.Version)
	binary.BigEndian.PutUint32(out[4:8], f.Header.NumStr)
	binary.BigEndian.PutUint32(out[8:12], f.Header.LongLen)
	binary.BigEndian.PutUint32(out[12:16], f.Header.ShortLen)
	binary.BigEndian.PutUint32(out[16:20], f.Header.Flags)
	out[20] = f.Header.Delim
	// bytes 21..23 stay zero (header padding)
	for i, off := range f.Offsets {
		binary.BigEndian.PutUint32(out[HeaderSize+i*4:], off)
	}
	return out, nil
}

// ReadFile reads and decodes the .dat index at path.
func ReadFile(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading dat file %s: %w", path, err)
	}
	f, err := Decode(b)
	if err != nil {
		return File{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return f, nil
}

// WriteFile encodes the index and publishes it atomically: the bytes
// are written to a temp file in the target directory and renamed into
// place, so a concurrent reader never observes a partial index.
func (f File) WriteFile(path string) error {
	encoded, err := f.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".strfile-*")
	if err != nil {
		return fmt.Errorf("creating temp index in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp index %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp index %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting index permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing index %s: %w", path, err)
	}
	return nil
}

// DatPath returns the sidecar index path for a fortune text file.
func DatPath(textPath string) string {
	return textPath + ".dat"
}
