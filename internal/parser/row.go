package parser

// Row is a view of the most recently parsed row. Field data aliases the
// buffer given to Feed; copy anything that must outlive the next parse.
type Row struct {
	buf    []byte
	offs   []int
	lens   []int
	quoted []bool
}

func (p *Parser) row(buf []byte) Row {
	n := p.top
	return Row{
		buf:    buf,
		offs:   p.offs[:n:n],
		lens:   p.lens[:n:n],
		quoted: p.quoted[:n:n],
	}
}

// Len returns the number of fields.
func (r Row) Len() int { return len(r.offs) }

// Field returns the bytes of field i, or nil when the field is null. An
// empty non-null field is a non-nil empty slice.
func (r Row) Field(i int) []byte {
	off := r.offs[i]
	if off == NullOffset {
		return nil
	}
	end := off + r.lens[i]
	return r.buf[off:end:end]
}

// String returns field i as a string (a copy); null reads as "".
func (r Row) String(i int) string {
	return string(r.Field(i))
}

// IsNull reports whether field i matched the null sentinel.
func (r Row) IsNull(i int) bool { return r.offs[i] == NullOffset }

// Quoted reports whether field i contained a quoted run.
func (r Row) Quoted(i int) bool { return r.quoted[i] }

// Offset returns the position of field i in the parsed buffer, or
// NullOffset.
func (r Row) Offset(i int) int { return r.offs[i] }

// Strings appends a copy of every field to dst. Null fields are appended as
// "".
func (r Row) Strings(dst []string) []string {
	for i := range r.offs {
		dst = append(dst, r.String(i))
	}
	return dst
}
