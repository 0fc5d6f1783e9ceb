// Package parser tokenizes CSV rows in place.
//
// Line locates the field boundaries of one row without copying or touching
// the input. Feed does the same and then finishes the row: it NUL-terminates
// every field, maps the null sentinel to a null field, strips quotes and
// escapes of quoted fields by compacting them in place, and trims a trailing
// carriage return from the last field. The resulting Row aliases the
// caller's buffer.
//
// A Parser is not safe for concurrent use. A Row is only valid until the next
// call to Line, Feed or FeedLast on the same Parser.
package parser

import (
	"github.com/csvquery/csvscan/internal/simd"
)

// MaxNull is the longest null sentinel kept by Open; longer ones are cut.
const MaxNull = 19

// NullOffset marks a null field in the offset array.
const NullOffset = -1

const terminator = '\n'

// Config holds the dialect of a Parser. Zero bytes select the defaults.
type Config struct {
	Quote     byte   // default '"'
	Escape    byte   // default: same as Quote
	Delimiter byte   // default ','
	Null      string // fields matching this exactly are null; default ""
	// MaxFields caps the field arrays; growing past it fails with
	// KindOutOfMemory. Zero means no cap.
	MaxFields int
}

// Parser is the long-lived tokenizer state for one stream.
type Parser struct {
	quote, escape, delim byte
	null                 []byte
	maxFields            int

	// parallel field arrays, valid for indexes [0, top)
	offs   []int
	lens   []int
	quoted []bool
	top    int

	// scratch used by FeedLast when the tail lacks a terminator
	lastBuf []byte

	diag    diagnostics
	matcher *simd.Matcher
	cursor  simd.Cursor
}

type diagnostics struct {
	lines int64
	chars int64
	rows  int64
	err   Error
}

// Open creates a Parser for cfg.
func Open(cfg Config) *Parser {
	if cfg.Quote == 0 {
		cfg.Quote = '"'
	}
	if cfg.Escape == 0 {
		cfg.Escape = cfg.Quote
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	null := cfg.Null
	if len(null) > MaxNull {
		null = null[:MaxNull]
	}

	return &Parser{
		quote:     cfg.Quote,
		escape:    cfg.Escape,
		delim:     cfg.Delimiter,
		null:      []byte(null),
		maxFields: cfg.MaxFields,
		matcher:   simd.NewMatcher(cfg.Quote, cfg.Escape, cfg.Delimiter, terminator),
	}
}

// Close releases the field arrays, the scratch buffer and the cursor's
// reference to the last input. Diagnostics stay readable.
func (p *Parser) Close() {
	p.offs = nil
	p.lens = nil
	p.quoted = nil
	p.top = 0
	p.lastBuf = nil
	p.cursor = simd.Cursor{}
}

// Quote returns the configured quote byte.
func (p *Parser) Quote() byte { return p.quote }

// Escape returns the configured escape byte.
func (p *Parser) Escape() byte { return p.escape }

// Delimiter returns the configured field delimiter.
func (p *Parser) Delimiter() byte { return p.delim }

// Null returns the configured null sentinel.
func (p *Parser) Null() string { return string(p.null) }

// Lines returns the number of lines consumed by successful parses.
func (p *Parser) Lines() int64 { return p.diag.lines }

// Chars returns the number of bytes consumed by successful parses.
func (p *Parser) Chars() int64 { return p.diag.chars }

// Rows returns the number of rows parsed so far.
func (p *Parser) Rows() int64 { return p.diag.rows }

// ErrKind returns the kind of the last error, KindNone if there was none.
func (p *Parser) ErrKind() Kind { return p.diag.err.Kind }

// ErrMsg returns the message of the last error.
func (p *Parser) ErrMsg() string { return p.diag.err.Msg }

// ErrLine returns the line number of the last error.
func (p *Parser) ErrLine() int64 { return p.diag.err.Line }

// ErrChar returns the byte position of the last error.
func (p *Parser) ErrChar() int64 { return p.diag.err.Char }

// ErrRow returns the row number of the last error.
func (p *Parser) ErrRow() int64 { return p.diag.err.Row }

// ErrField returns the field index of the last error.
func (p *Parser) ErrField() int { return p.diag.err.Field }

// Err returns a copy of the last error, or nil.
func (p *Parser) Err() *Error {
	if p.diag.err.Kind == KindNone {
		return nil
	}
	e := p.diag.err
	return &e
}

// Record stores an error found outside the tokenizer (by a driver, for
// example) at the current stream position and returns it.
func (p *Parser) Record(kind Kind, msg string) *Error {
	return p.fail(kind, msg, 0, 0, 0)
}

// fail saves the error state. nline and nchar are offsets within the row
// being parsed; field is the index of the failing field.
func (p *Parser) fail(kind Kind, msg string, field, nline, nchar int) *Error {
	p.diag.err = Error{
		Kind:  kind,
		Msg:   msg,
		Line:  p.diag.lines + int64(nline) + 1,
		Char:  p.diag.chars + int64(nchar),
		Row:   p.diag.rows + 1,
		Field: field,
	}
	e := p.diag.err
	return &e
}

// expand grows the field arrays by 1.2x + 64.
func (p *Parser) expand() bool {
	max := int(float64(len(p.offs))*1.2) + 64
	if p.maxFields > 0 && max > p.maxFields {
		if len(p.offs) >= p.maxFields {
			return false
		}
		max = p.maxFields
	}

	offs := make([]int, max)
	copy(offs, p.offs)
	lens := make([]int, max)
	copy(lens, p.lens)
	quoted := make([]bool, max)
	copy(quoted, p.quoted)

	p.offs, p.lens, p.quoted = offs, lens, quoted
	return true
}
