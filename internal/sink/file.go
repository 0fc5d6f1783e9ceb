package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/csvquery/csvscan/internal/source"
)

// File is an output file opened for appending under an exclusive lock. Data
// is compressed when the name ends in .lz4, .zst or .gz; every File appends
// a new compressed frame (gzip member, zstd or lz4 frame).
type File struct {
	f     *os.File
	bw    *bufio.Writer
	comp  io.WriteCloser
	w     io.Writer
	Codec source.Codec
}

// CreateFile opens path for appending, creating it and its directory if
// needed, and locks it until Close.
func CreateFile(path string) (*File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock file: %w", err)
	}

	out := &File{f: f, bw: bufio.NewWriterSize(f, 256*1024), Codec: source.CodecFor(path)}
	out.w = out.bw

	switch out.Codec {
	case source.CodecLZ4:
		lw := lz4.NewWriter(out.bw)
		_ = lw.Apply(lz4.BlockSizeOption(lz4.Block4Mb))
		out.comp = lw
	case source.CodecZstd:
		zw, err := zstd.NewWriter(out.bw)
		if err != nil {
			out.release()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		out.comp = zw
	case source.CodecGzip:
		out.comp = gzip.NewWriter(out.bw)
	}
	if out.comp != nil {
		out.w = out.comp
	}
	return out, nil
}

func (o *File) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

// Name returns the file name.
func (o *File) Name() string {
	return o.f.Name()
}

// Close finishes the compressed frame, flushes, unlocks and closes the file.
func (o *File) Close() error {
	var err error
	if o.comp != nil {
		err = o.comp.Close()
	}
	if ferr := o.bw.Flush(); err == nil {
		err = ferr
	}
	if rerr := o.release(); err == nil {
		err = rerr
	}
	return err
}

func (o *File) release() error {
	unlockFile(o.f)
	return o.f.Close()
}
