package parser

import (
	"bytes"
)

// touchup finishes the row found by Line: NUL-terminate every field,
// replace the null sentinel, and unquote quoted fields in place. When a
// quoted field does not balance it stops and returns the field index and
// position with ok == false.
func (p *Parser) touchup(buf []byte) (field, pos int, ok bool) {
	var (
		quote  = p.quote
		escape = p.escape
		null   = p.null
		top    = p.top
	)

	for i := 0; i < top; i++ {
		off := p.offs[i]
		end := off + p.lens[i]

		// end is the delimiter or terminator of this field, already
		// consumed by Line
		buf[end] = 0
		if end-off == len(null) && bytes.Equal(buf[off:end], null) {
			p.offs[i] = NullOffset
			continue
		}

		if !p.quoted[i] {
			continue
		}

		inquote := false
		s := off
		for r := off; r < end; {
			ch := buf[r]
			r++
			if ch == escape || ch == quote {
				if inquote && ch == escape && r < end {
					if next := buf[r]; next == quote || next == escape {
						buf[s] = next
						s++
						r++
						continue
					}
				}
				if ch == quote {
					inquote = !inquote
					continue
				}
			}
			buf[s] = ch
			s++
		}
		if inquote {
			// Line already balanced the quotes of this field
			return i, end, false
		}
		buf[s] = 0
		p.lens[i] = s - off
	}

	// drop the \r of a \r\n terminator
	if top > 0 {
		i := top - 1
		off := p.offs[i]
		if off == NullOffset {
			return 0, 0, true
		}
		n := p.lens[i]
		if n > 0 && buf[off+n-1] == '\r' {
			n--
			buf[off+n] = 0
			p.lens[i] = n
			if n == len(null) && bytes.Equal(buf[off:off+n], null) {
				p.offs[i] = NullOffset
			}
		}
	}
	return 0, 0, true
}
