// Package source opens the byte streams fed to the CSV driver: regular
// files (memory mapped), standard input, and lz4, zstd or gzip compressed
// files, with a leading UTF-8 byte order mark removed.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/spkg/bom"

	"github.com/csvquery/csvscan/internal/common"
)

// Codec identifies a compression format.
type Codec int

const (
	CodecNone Codec = iota
	CodecLZ4
	CodecZstd
	CodecGzip
)

func (c Codec) String() string {
	switch c {
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	case CodecGzip:
		return "gzip"
	default:
		return "none"
	}
}

// CodecFor picks the codec from the file extension.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lz4":
		return CodecLZ4
	case ".zst", ".zstd":
		return CodecZstd
	case ".gz", ".gzip":
		return CodecGzip
	}
	return CodecNone
}

// Source is an open input stream.
type Source struct {
	io.Reader

	Name  string
	Codec Codec
	// Size is the size of the underlying file, or -1 for standard input.
	Size int64

	closers []func() error
}

// Open opens path for reading. "-" reads standard input.
func Open(path string) (*Source, error) {
	if path == "-" {
		s := &Source{Name: "<stdin>", Size: -1}
		if err := s.wrap(os.Stdin, CodecNone); err != nil {
			return nil, err
		}
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	s := &Source{Name: path, Size: st.Size()}
	s.closers = append(s.closers, f.Close)

	var r io.Reader = f
	if st.Mode().IsRegular() {
		data, err := common.MmapFile(f)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() error { return common.MunmapFile(data) })
		r = bytes.NewReader(data)
	}

	if err := s.wrap(r, CodecFor(path)); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// NewReader wraps r with the decompressor for codec and strips a leading
// byte order mark. Close the returned Source to release the decompressor; it
// does not close r.
func NewReader(r io.Reader, codec Codec) (*Source, error) {
	s := &Source{Name: "<reader>", Size: -1}
	if err := s.wrap(r, codec); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) wrap(r io.Reader, codec Codec) error {
	s.Codec = codec
	switch codec {
	case CodecLZ4:
		r = lz4.NewReader(r)
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		s.closers = append(s.closers, func() error { zr.Close(); return nil })
		r = zr
	case CodecGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		s.closers = append(s.closers, gr.Close)
		r = gr
	}
	s.Reader = stripBOM(r)
	return nil
}

// Close releases the source in reverse order of acquisition.
func (s *Source) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// stripBOM drops a UTF-8 byte order mark at the start of r.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(3)
	if n := len(head) - len(bom.Clean(head)); n > 0 {
		br.Discard(n)
	}
	return br
}
