package simd

import (
	"math/bits"
)

// Cursor walks the special bytes of buf[start:end] in ascending order.
//
// The bitmap for a 16-byte window is computed once and drained one bit at
// a time; the next window is only matched after the bitmap is empty. When
// fewer than 16 bytes remain they are copied into a scratch array first so
// that nothing past end is ever read.
type Cursor struct {
	m    *Matcher
	buf  []byte
	base int // offset of the current window
	end  int
	bmap uint16
	tmp  [Width]byte
}

// Reset points the cursor at buf[start:end] and matches the first window.
func (c *Cursor) Reset(m *Matcher, buf []byte, start, end int) {
	c.m = m
	c.buf = buf
	c.base = start
	c.end = end
	c.bmap = c.load(start)
}

// Next returns the offset in buf of the next special byte, or -1 when the
// range is exhausted.
func (c *Cursor) Next() int {
	for c.bmap == 0 {
		if c.base+Width >= c.end {
			c.base = c.end
			return -1
		}
		c.base += Width
		c.bmap = c.load(c.base)
	}
	off := bits.TrailingZeros16(c.bmap)
	c.bmap &^= 1 << off
	return c.base + off
}

func (c *Cursor) load(base int) uint16 {
	n := c.end - base
	if n >= Width {
		return matchImpl(c.m, (*[Width]byte)(c.buf[base:base+Width]), Width)
	}
	if n <= 0 {
		return 0
	}
	copy(c.tmp[:], c.buf[base:c.end])
	return matchImpl(c.m, &c.tmp, n)
}
