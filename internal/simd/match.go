package simd

import (
	"encoding/binary"
)

const (
	lsb  = 0x0101010101010101
	low7 = 0x7f7f7f7f7f7f7f7f
	// gathers bit 8i of a word into bit 56+i
	gather = 0x0102040810204080
)

// matchSWAR compares both halves of the window against every target.
// For each byte v of x = word ^ splat, ^(((v & 0x7f) + 0x7f) | v | 0x7f)
// is 0x80 exactly when v == 0, so there are no false positives from
// borrows across bytes.
func matchSWAR(m *Matcher, w *[Width]byte, n int) uint16 {
	lo := binary.LittleEndian.Uint64(w[0:8])
	hi := binary.LittleEndian.Uint64(w[8:16])

	var accLo, accHi uint64
	for i := 0; i < m.n; i++ {
		s := m.splat[i]
		x := lo ^ s
		accLo |= ^(((x & low7) + low7) | x | low7)
		x = hi ^ s
		accHi |= ^(((x & low7) + low7) | x | low7)
	}

	bmap := uint16(movemask(accLo)) | uint16(movemask(accHi))<<8
	return bmap & lengthMask(n)
}

// movemask collects the 0x80 marker of every byte into an 8-bit mask.
func movemask(x uint64) uint8 {
	return uint8(((x >> 7) * gather) >> 56)
}

// matchEmulated is the portable equal-any compare: every window byte is
// tested against every target.
func matchEmulated(m *Matcher, w *[Width]byte, n int) uint16 {
	var bmap uint16
	for i := 0; i < n; i++ {
		for j := 0; j < m.n; j++ {
			if m.targets[j] == w[i] {
				bmap |= 1 << i
			}
		}
	}
	return bmap
}

func lengthMask(n int) uint16 {
	if n >= Width {
		return 0xffff
	}
	if n <= 0 {
		return 0
	}
	return uint16(1)<<n - 1
}
