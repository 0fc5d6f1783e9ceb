// Package simd provides the special-byte scan used by the CSV tokenizer.
//
// A Matcher holds up to 16 target bytes (quote, escape, delimiter and the
// record terminator for CSV). Match compares a 16-byte window against the
// whole target set at once and returns a 16-bit bitmap with bit i set when
// window[i] equals any target, which is the contract of the SSE4.2
// PCMPESTRM "equal any" compare.
//
// Two implementations produce identical bitmaps:
//   - swar: two 64-bit words compared per target with branch-free
//     zero-byte detection (SIMD within a register)
//   - emulated: a nested byte loop over window x targets
//
// The default is chosen at build time: 64-bit little-endian targets use
// swar, everything else uses emulated.
package simd

import (
	"fmt"
)

// Width is the number of bytes compared per window.
const Width = 16

// Matcher is a compiled set of target bytes.
type Matcher struct {
	targets [Width]byte
	n       int
	// targets broadcast to every byte of a word, for the swar path
	splat [Width]uint64
}

// NewMatcher compiles targets into a Matcher. Duplicate targets are
// dropped. More than Width distinct targets is a programming error.
func NewMatcher(targets ...byte) *Matcher {
	m := &Matcher{}
	for _, t := range targets {
		if m.has(t) {
			continue
		}
		if m.n == Width {
			panic(fmt.Sprintf("simd: more than %d target bytes", Width))
		}
		m.targets[m.n] = t
		m.splat[m.n] = uint64(t) * lsb
		m.n++
	}
	return m
}

func (m *Matcher) has(b byte) bool {
	for i := 0; i < m.n; i++ {
		if m.targets[i] == b {
			return true
		}
	}
	return false
}

// Targets returns the compiled target bytes.
func (m *Matcher) Targets() []byte {
	return append([]byte(nil), m.targets[:m.n]...)
}

// Match returns the bitmap of positions in window (at most Width bytes are
// considered) holding one of the target bytes.
func (m *Matcher) Match(window []byte) uint16 {
	if len(window) >= Width {
		return matchImpl(m, (*[Width]byte)(window[:Width]), Width)
	}
	var tmp [Width]byte
	n := copy(tmp[:], window)
	return matchImpl(m, &tmp, n)
}

// matchImpl is the function pointer to the selected implementation.
// It is set in init() by the build-specific dispatch file.
var (
	matchImpl func(m *Matcher, w *[Width]byte, n int) uint16
	implName  string
)

var impls = map[string]func(m *Matcher, w *[Width]byte, n int) uint16{
	"swar":     matchSWAR,
	"emulated": matchEmulated,
}

// Impl names the implementation in use.
func Impl() string {
	return implName
}

// Select switches the implementation by name ("swar" or "emulated").
// It is meant for benchmarks and CLI flags, not for concurrent use.
func Select(name string) error {
	fn, ok := impls[name]
	if !ok {
		return fmt.Errorf("simd: unknown implementation %q", name)
	}
	matchImpl = fn
	implName = name
	return nil
}
