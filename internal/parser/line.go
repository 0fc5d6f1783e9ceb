package parser

type state int

const (
	stateStartField state = iota
	stateUnquoted
	stateQuoted
	stateEndField
)

// Line locates the fields of the first row in buf.
//
// It returns the number of bytes of the row, including its terminator, and
// fills the field arrays. A return of 0 with a nil error means buf does not
// hold a complete row: nothing was consumed and the caller should retry
// from the same offset with more bytes. On failure the diagnostics are
// recorded and returned as an *Error.
//
// Line never modifies buf.
func (p *Parser) Line(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	var (
		quote  = p.quote
		escape = p.escape
		delim  = p.delim
		end    = len(buf)
		scan   = &p.cursor

		pos    int // current position; start of field or special byte
		start  int // start of the current field
		cno    int // field index
		nline  int
		quoted bool
	)
	scan.Reset(p.matcher, buf, 0, end)

	st := stateStartField
	for {
		switch st {
		case stateStartField:
			if cno >= len(p.offs) && !p.expand() {
				return 0, p.fail(KindOutOfMemory, "out of memory", cno, nline, pos)
			}
			start = pos
			quoted = false
			st = stateUnquoted

		case stateUnquoted:
			if pos = scan.Next(); pos < 0 {
				return 0, nil
			}
			switch ch := buf[pos]; {
			case ch == delim || ch == terminator:
				st = stateEndField
			case ch == quote:
				quoted = true
				st = stateQuoted
			default:
				// escape outside quotes is plain data
			}

		case stateQuoted:
			if pos = scan.Next(); pos < 0 {
				return 0, nil
			}
			ch := buf[pos]
			if ch == escape {
				if pos+1 >= end {
					// need the next byte to decide
					return 0, nil
				}
				if next := buf[pos+1]; next == quote || next == escape {
					if scan.Next() != pos+1 {
						return 0, p.fail(KindInternal, "internal error: bad pointer value", cno, nline, pos)
					}
					continue
				}
				// escape before an ordinary byte is data, unless it is also
				// the quote byte
			}
			if ch == quote {
				st = stateUnquoted
			}

		case stateEndField:
			p.offs[cno] = start
			p.lens[cno] = pos - start
			p.quoted[cno] = quoted
			cno++

			ch := buf[pos]
			pos++
			if ch == delim {
				st = stateStartField
				continue
			}

			// end of row
			p.top = cno
			nline++
			p.diag.lines += int64(nline)
			p.diag.rows++
			p.diag.chars += int64(pos)
			return pos, nil
		}
	}
}
