// Package stream drives the CSV parser over an input of unknown size.
//
// The Driver owns one growable buffer. It fills the free tail from the byte
// source, parses as many complete rows as the buffer holds, hands each one to
// the row callback and shifts the unconsumed bytes back to the start of the
// buffer before the next fill. The buffer only grows when a single row does
// not fit, so its size is bounded by the largest row seen, not by the size of
// the stream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/csvquery/csvscan/internal/parser"
)

// DefaultBufferSize is the initial buffer size.
const DefaultBufferSize = 1024 * 1024

// maxConsecutiveEmptyReads mirrors bufio: a source returning (0, nil) this
// many times in a row is treated as broken.
const maxConsecutiveEmptyReads = 100

// ErrStop is returned by a RowFunc to end the stream early. Run then
// returns a nil error and Result.Stopped is set.
var ErrStop = errors.New("stream: stop requested")

// RowFunc receives every parsed row together with its 1-based row number.
// The row is only valid for the duration of the call.
type RowFunc func(handle any, rownum int64, row parser.Row) error

// ErrorFunc is called exactly once when the stream fails. p holds the
// diagnostics snapshot of the failure.
type ErrorFunc func(handle any, err error, p *parser.Parser)

// FillFunc adapts a fill callback to io.Reader. It writes into buf and
// returns the number of bytes written; 0 with a nil error marks the end of
// the source.
type FillFunc func(buf []byte) (int, error)

// Read implements io.Reader.
func (f FillFunc) Read(buf []byte) (int, error) {
	n, err := f(buf)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

// Options configures a Driver.
type Options struct {
	// Handle is passed through to the callbacks untouched.
	Handle any

	// Dialect; zero bytes select the parser defaults.
	Quote     byte
	Escape    byte
	Delimiter byte
	Null      string

	// BufferSize is the initial buffer size (DefaultBufferSize if zero).
	BufferSize int
	// MaxBufferSize caps buffer growth; zero means no cap.
	MaxBufferSize int
	// MaxFields caps the parser's field arrays; zero means no cap.
	MaxFields int
}

// Result summarizes a run.
type Result struct {
	Rows       int64 // rows delivered to the row callback
	Bytes      int64 // input bytes consumed
	Stopped    bool  // the row callback returned ErrStop
	BufferSize int   // final buffer size
}

// Driver feeds one byte source through one parser.
type Driver struct {
	opts   Options
	parser *parser.Parser
	buf    []byte
	res    Result
}

// NewDriver creates a Driver; the parser is created when Run starts.
func NewDriver(opts Options) *Driver {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.MaxBufferSize > 0 && opts.BufferSize > opts.MaxBufferSize {
		opts.BufferSize = opts.MaxBufferSize
	}
	return &Driver{opts: opts}
}

// Scan is shorthand for NewDriver(opts).Run(ctx, src, onRow, onError).
func Scan(ctx context.Context, opts Options, src io.Reader, onRow RowFunc, onError ErrorFunc) (Result, error) {
	return NewDriver(opts).Run(ctx, src, onRow, onError)
}

// Parser returns the parser of the current or last run, for diagnostics.
func (d *Driver) Parser() *parser.Parser {
	return d.parser
}

// Run reads src to the end and delivers every row to onRow.
//
// Any failure (parse error, source error, buffer limit, trailing data after
// the final row, a row callback error other than ErrStop, or ctx being
// cancelled) ends the run: onError is called once and the error returned.
func (d *Driver) Run(ctx context.Context, src io.Reader, onRow RowFunc, onError ErrorFunc) (Result, error) {
	d.parser = parser.Open(parser.Config{
		Quote:     d.opts.Quote,
		Escape:    d.opts.Escape,
		Delimiter: d.opts.Delimiter,
		Null:      d.opts.Null,
		MaxFields: d.opts.MaxFields,
	})
	d.buf = make([]byte, d.opts.BufferSize)
	d.res = Result{}
	defer d.release()

	fail := func(err error) (Result, error) {
		if onError != nil {
			onError(d.opts.Handle, err, d.parser)
		}
		return d.result(), err
	}

	var (
		p, q  int // consumed up to, filled up to
		eof   bool
		empty int
	)

	for !eof {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		// shift p..q to the start of buf
		if p != 0 {
			copy(d.buf, d.buf[p:q])
			q -= p
			p = 0
		}

		// a row did not fit: expand buf
		if q == len(d.buf) {
			if err := d.grow(); err != nil {
				return fail(err)
			}
		}

		nb, err := src.Read(d.buf[q:])
		if nb < 0 || nb > len(d.buf)-q {
			return fail(fmt.Errorf("fill: invalid byte count %d", nb))
		}
		q += nb
		switch {
		case errors.Is(err, io.EOF):
			eof = true
		case err != nil:
			return fail(fmt.Errorf("fill: %w", err))
		case nb == 0:
			if empty++; empty >= maxConsecutiveEmptyReads {
				return fail(fmt.Errorf("fill: %w", io.ErrNoProgress))
			}
			continue
		}
		empty = 0

		// feed every complete row in buf
		for p < q {
			row, n, err := d.parser.Feed(d.buf[p:q])
			if err != nil {
				return fail(err)
			}
			if n == 0 {
				break
			}
			p += n
			if stop, err := d.deliver(ctx, onRow, row, n); err != nil {
				return fail(err)
			} else if stop {
				return d.result(), nil
			}
		}
	}

	// one last row might remain in buf
	if p < q {
		row, n, err := d.parser.FeedLast(d.buf[p:q])
		if err != nil {
			return fail(err)
		}
		if n > 0 {
			p += n
			if stop, err := d.deliver(ctx, onRow, row, n); err != nil {
				return fail(err)
			} else if stop {
				return d.result(), nil
			}
		}
	}

	if p != q {
		return fail(d.parser.Record(parser.KindExtraInput, "extra data after last row"))
	}
	return d.result(), nil
}

// result snapshots the run summary; call it before release drops buf.
func (d *Driver) result() Result {
	d.res.BufferSize = len(d.buf)
	return d.res
}

func (d *Driver) deliver(ctx context.Context, onRow RowFunc, row parser.Row, n int) (bool, error) {
	d.res.Rows++
	d.res.Bytes += int64(n)
	if onRow != nil {
		if err := onRow(d.opts.Handle, d.parser.Rows(), row); err != nil {
			if errors.Is(err, ErrStop) {
				d.res.Stopped = true
				return true, nil
			}
			return false, fmt.Errorf("row %d: %w", d.parser.Rows(), err)
		}
	}
	return false, ctx.Err()
}

// grow expands buf by 1.5x (at least one byte), bounded by MaxBufferSize.
func (d *Driver) grow() error {
	size := len(d.buf)
	newSize := max(size+size/2, size+1)
	if limit := d.opts.MaxBufferSize; limit > 0 && newSize > limit {
		if size >= limit {
			return d.parser.Record(parser.KindOutOfMemory,
				fmt.Sprintf("cannot expand buffer beyond %d bytes", size))
		}
		newSize = limit
	}
	buf := make([]byte, newSize)
	copy(buf, d.buf)
	d.buf = buf
	return nil
}

func (d *Driver) release() {
	d.buf = nil
	d.parser.Close()
}
