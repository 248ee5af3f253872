// Package compression provides streaming compression for sink artifacts.
//
// Each page written by a file or object-store sink is one artifact; the
// chosen Algorithm wraps the artifact's writer and determines its file
// extension.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Algorithms lists the supported algorithms.
var Algorithms = []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2}

// Parse returns the algorithm named s. The empty string means None.
func Parse(s string) (Algorithm, error) {
	if s == "" {
		return None, nil
	}
	alg := Algorithm(strings.ToLower(s))
	for _, known := range Algorithms {
		if alg == known {
			return alg, nil
		}
	}
	return "", fmt.Errorf("unsupported compression algorithm %q", s)
}

// Extension returns the file suffix for artifacts compressed with a,
// including the leading dot, or "" for None.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	case S2:
		return ".s2"
	default:
		return ""
	}
}

// ContentEncoding returns the HTTP Content-Encoding value for object stores,
// or "" when there is no registered token for the algorithm.
func (a Algorithm) ContentEncoding() string {
	switch a {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return ""
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w so that bytes written are compressed with a. Close
// flushes the compressed stream but does not close w.
func NewWriter(a Algorithm, w io.Writer) (io.WriteCloser, error) {
	switch a {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case S2:
		return s2.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", a)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewReader wraps r so that reads return decompressed bytes.
func NewReader(a Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch a {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", a)
	}
}

// Compress compresses data in one call.
func Compress(a Algorithm, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(a, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data in one call.
func Decompress(a Algorithm, data []byte) ([]byte, error) {
	r, err := NewReader(a, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
