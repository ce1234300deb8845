package query

import (
	"compress/bzip2"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Open opens path for reading, transparently decompressing
// .gz, .zst and .bz2 files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &stackedReader{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &stackedReader{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }, f.Close}}, nil
	case strings.HasSuffix(path, ".bz2"):
		return &stackedReader{Reader: bzip2.NewReader(f), closers: []func() error{f.Close}}, nil
	default:
		return f, nil
	}
}

// stackedReader closes a decompressor and its underlying file in order.
type stackedReader struct {
	io.Reader
	closers []func() error
}

func (r *stackedReader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
