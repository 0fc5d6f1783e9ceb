// Package sink holds the destinations parsed rows are written to.
package sink

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/csvquery/csvscan/internal/parser"
)

// Sink consumes rows in stream order. Rows are only valid during WriteRow.
type Sink interface {
	WriteRow(rownum int64, row parser.Row) error
	Close() error
}

// JSONSink writes each row as a JSON array on its own line. Null fields are
// written as null.
type JSONSink struct {
	bw     *bufio.Writer
	enc    *json.Encoder
	fields []any
}

// NewJSONSink creates a JSONSink on w. Close flushes but does not close w.
func NewJSONSink(w io.Writer) *JSONSink {
	bw := bufio.NewWriterSize(w, 64*1024)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONSink{bw: bw, enc: enc}
}

func (s *JSONSink) WriteRow(_ int64, row parser.Row) error {
	s.fields = appendValues(s.fields[:0], row)
	return s.enc.Encode(s.fields)
}

// Flush writes any buffered rows to the underlying writer.
func (s *JSONSink) Flush() error {
	return s.bw.Flush()
}

func (s *JSONSink) Close() error {
	return s.bw.Flush()
}

// appendValues converts row to nil (null) and string values.
func appendValues(dst []any, row parser.Row) []any {
	for i := 0; i < row.Len(); i++ {
		if row.IsNull(i) {
			dst = append(dst, nil)
		} else {
			dst = append(dst, row.String(i))
		}
	}
	return dst
}

// CSVSink re-encodes rows as RFC 4180 CSV. Null fields are written as the
// null text.
type CSVSink struct {
	w      *csv.Writer
	null   string
	record []string
}

// NewCSVSink creates a CSVSink on w with the given delimiter.
func NewCSVSink(w io.Writer, delim byte, null string) *CSVSink {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = rune(delim)
	}
	return &CSVSink{w: cw, null: null}
}

func (s *CSVSink) WriteRow(_ int64, row parser.Row) error {
	s.record = s.record[:0]
	for i := 0; i < row.Len(); i++ {
		if row.IsNull(i) {
			s.record = append(s.record, s.null)
		} else {
			s.record = append(s.record, row.String(i))
		}
	}
	return s.w.Write(s.record)
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	return s.w.Error()
}

// CountSink only counts.
type CountSink struct {
	Rows   int64
	Fields int64
	Nulls  int64
	Quoted int64
	Bytes  int64
	// MaxFields is the widest row seen.
	MaxFields int
}

func NewCountSink() *CountSink {
	return &CountSink{}
}

func (s *CountSink) WriteRow(_ int64, row parser.Row) error {
	n := row.Len()
	s.Rows++
	s.Fields += int64(n)
	if n > s.MaxFields {
		s.MaxFields = n
	}
	for i := 0; i < n; i++ {
		switch {
		case row.IsNull(i):
			s.Nulls++
			continue
		case row.Quoted(i):
			s.Quoted++
		}
		s.Bytes += int64(len(row.Field(i)))
	}
	return nil
}

func (s *CountSink) Close() error { return nil }
