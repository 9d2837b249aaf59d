// Package codec selects a compression stream for record and artifact files
// based on the file name suffix.
package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Kind names a supported on-disk encoding.
type Kind string

const (
	None Kind = "none"
	Zstd Kind = "zstd"
	LZ4  Kind = "lz4"
)

// Extension returns the file suffix appended for kind.
func (k Kind) Extension() string {
	switch k {
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ParseKind maps a configuration value to a Kind. Empty means None.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case "", None:
		return None, nil
	case Zstd:
		return Zstd, nil
	case LZ4:
		return LZ4, nil
	}
	return None, fmt.Errorf("codec: unknown compression %q", s)
}

// Detect returns the encoding implied by name's suffix.
func Detect(name string) Kind {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return Zstd
	case strings.HasSuffix(name, ".lz4"):
		return LZ4
	default:
		return None
	}
}

// TrimExtension strips a compression suffix from name, if any.
func TrimExtension(name string) string {
	return strings.TrimSuffix(name, Detect(name).Extension())
}

// IsRecordFile reports whether name is a JSON record, optionally compressed.
func IsRecordFile(name string) bool {
	return strings.HasSuffix(TrimExtension(name), ".json")
}

// NewReader wraps r with the decompressor matching kind. The returned
// closer releases decoder resources; it does not close r.
func NewReader(kind Kind, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("codec: zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// NewWriter wraps w with the compressor matching kind. Close flushes the
// compressed stream; it does not close w.
func NewWriter(kind Kind, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("codec: zstd writer: %w", err)
		}
		return enc, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
