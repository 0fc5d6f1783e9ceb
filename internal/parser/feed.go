package parser

// Feed parses and finishes the first row of buf.
//
// The return values follow Line: n > 0 is a complete row of n bytes, n == 0
// with a nil error means more input is needed. The fields of a complete row
// are rewritten in place inside buf[:n]; bytes after the row are untouched.
func (p *Parser) Feed(buf []byte) (Row, int, error) {
	mark := p.diag
	n, err := p.Line(buf)
	if err != nil || n <= 0 {
		return Row{}, n, err
	}
	if err := p.finish(buf, mark); err != nil {
		return Row{}, 0, err
	}
	return p.row(buf), n, nil
}

// finish runs touchup on the row Line just found. On failure the counters
// go back to mark so the row is not counted.
func (p *Parser) finish(buf []byte, mark diagnostics) error {
	field, pos, ok := p.touchup(buf)
	if ok {
		return nil
	}
	p.diag.lines, p.diag.chars, p.diag.rows = mark.lines, mark.chars, mark.rows
	return p.fail(KindInternal, "internal error: unbalanced quote", field, 0, pos)
}

// FeedLast is Feed for the final bytes of a stream. When buf does not end
// with a terminator, it is copied into a scratch buffer with "\n" and a NUL
// guard appended and parsed from there; the returned count is then one less
// than the padded parse so that it matches len(buf). In that case the Row
// aliases the scratch buffer instead of buf.
func (p *Parser) FeedLast(buf []byte) (Row, int, error) {
	if len(buf) == 0 {
		return Row{}, 0, nil
	}

	appended := false
	if buf[len(buf)-1] != terminator {
		size := len(buf) + 2
		if cap(p.lastBuf) < size {
			p.lastBuf = make([]byte, size)
		}
		p.lastBuf = p.lastBuf[:size]
		copy(p.lastBuf, buf)
		p.lastBuf[len(buf)] = terminator
		p.lastBuf[len(buf)+1] = 0
		buf = p.lastBuf[:len(buf)+1]
		appended = true
	}

	row, n, err := p.Feed(buf)
	if n > 0 && appended {
		n--
	}
	return row, n, err
}
