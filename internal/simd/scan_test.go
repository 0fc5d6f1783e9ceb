package simd

import (
	"math/bits"
	"math/rand"
	"testing"
)

func csvMatcher() *Matcher {
	return NewMatcher('"', '\\', ',', '\n')
}

func TestMatchBasic(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{
			name:  "simple CSV line",
			input: "a,b,c\n",
			want:  []int{1, 3, 5},
		},
		{
			name:  "quoted field",
			input: `"hello",world` + "\n",
			want:  []int{0, 6, 7, 13},
		},
		{
			name:  "escape byte",
			input: `"a\"b",c`,
			want:  []int{0, 2, 3, 5, 6},
		},
		{
			name:  "no specials",
			input: "abcdefghijklmnop",
			want:  nil,
		},
		{
			name:  "all specials",
			input: ",,,,,,,,,,,,,,,,",
			want:  []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		},
		{
			name:  "longer than a window",
			input: "0123456789abcde,,",
			want:  []int{15},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	m := csvMatcher()
	for _, tt := range tests {
		for name, fn := range impls {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				var w [Width]byte
				n := copy(w[:], tt.input)
				got := bitmapToPositions(fn(m, &w, n))
				if !equalIntSlices(got, tt.want) {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			})
		}
	}
}

// Both implementations must agree bit for bit, including short tails and
// garbage past the logical end of the window.
func TestMatchEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []byte("ab,\"\\\n\r\x00x;|")

	for iter := 0; iter < 20000; iter++ {
		ntargets := 1 + rng.Intn(Width)
		targets := make([]byte, ntargets)
		for i := range targets {
			targets[i] = byte(rng.Intn(256))
		}
		m := NewMatcher(targets...)

		var w [Width]byte
		for i := range w {
			if rng.Intn(2) == 0 {
				w[i] = alphabet[rng.Intn(len(alphabet))]
			} else {
				w[i] = byte(rng.Intn(256))
			}
		}
		// sprinkle actual targets
		for k := rng.Intn(4); k > 0; k-- {
			w[rng.Intn(Width)] = targets[rng.Intn(len(targets))]
		}
		n := rng.Intn(Width + 1)

		a := matchSWAR(m, &w, n)
		b := matchEmulated(m, &w, n)
		if a != b {
			t.Fatalf("window %q n=%d targets %q: swar %016b emulated %016b", w[:], n, targets, a, b)
		}
		if a&^lengthMask(n) != 0 {
			t.Fatalf("bits set past n=%d: %016b", n, a)
		}
	}
}

func TestMatchAllByteValues(t *testing.T) {
	for target := 0; target < 256; target++ {
		m := NewMatcher(byte(target))
		for start := 0; start < 256; start += Width {
			var w [Width]byte
			for i := range w {
				w[i] = byte(start + i)
			}
			a := matchSWAR(m, &w, Width)
			b := matchEmulated(m, &w, Width)
			if a != b {
				t.Fatalf("target %#x window from %#x: swar %016b emulated %016b", target, start, a, b)
			}
		}
	}
}

func TestMatcherDedup(t *testing.T) {
	// default CSV config has escape == quote
	m := NewMatcher('"', '"', ',', '\n')
	if got := string(m.Targets()); got != "\",\n" {
		t.Errorf("targets = %q", got)
	}
}

func TestMatcherTooManyTargets(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for 17 targets")
		}
	}()
	targets := make([]byte, Width+1)
	for i := range targets {
		targets[i] = byte('a' + i)
	}
	NewMatcher(targets...)
}

func TestMatchShortWindow(t *testing.T) {
	m := csvMatcher()
	if got := m.Match([]byte("a,")); got != 0b10 {
		t.Errorf("Match = %016b, want 10", got)
	}
}

func TestCursor(t *testing.T) {
	sizes := []int{0, 1, 15, 16, 17, 31, 32, 33, 63, 64, 65, 255, 256, 257}
	m := csvMatcher()
	rng := rand.New(rand.NewSource(7))

	for _, size := range sizes {
		buf := make([]byte, size)
		for i := range buf {
			switch rng.Intn(6) {
			case 0:
				buf[i] = ','
			case 1:
				buf[i] = '\n'
			default:
				buf[i] = 'x'
			}
		}
		for _, start := range []int{0, 1, 5} {
			if start > size {
				continue
			}
			var c Cursor
			c.Reset(m, buf, start, size)
			var got []int
			for off := c.Next(); off >= 0; off = c.Next() {
				got = append(got, off)
			}
			want := naivePositions(buf, start, size, m)
			if !equalIntSlices(got, want) {
				t.Errorf("size=%d start=%d: got %v, want %v", size, start, got, want)
			}
			if c.Next() != -1 {
				t.Errorf("size=%d start=%d: Next after exhaustion != -1", size, start)
			}
		}
	}
}

// The cursor must not look past end even when buf continues.
func TestCursorStopsAtEnd(t *testing.T) {
	buf := []byte("abc,def\n,,,,")
	var c Cursor
	c.Reset(csvMatcher(), buf, 0, 5)
	if off := c.Next(); off != 3 {
		t.Fatalf("first = %d, want 3", off)
	}
	if off := c.Next(); off != -1 {
		t.Fatalf("second = %d, want -1", off)
	}
}

func TestSelect(t *testing.T) {
	prev := Impl()
	defer func() { _ = Select(prev) }()

	if err := Select("emulated"); err != nil {
		t.Fatal(err)
	}
	if Impl() != "emulated" {
		t.Errorf("Impl() = %q", Impl())
	}
	if err := Select("avx9000"); err == nil {
		t.Error("expected error for unknown implementation")
	}
}

func naivePositions(buf []byte, start, end int, m *Matcher) []int {
	var out []int
	for i := start; i < end; i++ {
		if m.has(buf[i]) {
			out = append(out, i)
		}
	}
	return out
}

// bitmapToPositions converts a bitmap to a list of set bit positions
func bitmapToPositions(bmap uint16) []int {
	var positions []int
	for bmap != 0 {
		tz := bits.TrailingZeros16(bmap)
		positions = append(positions, tz)
		bmap &^= 1 << tz
	}
	return positions
}

func equalIntSlices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Benchmarks

func benchmarkCursor(b *testing.B, impl string, size int) {
	prev := Impl()
	defer func() { _ = Select(prev) }()
	if err := Select(impl); err != nil {
		b.Fatal(err)
	}

	input := make([]byte, size)
	for i := range input {
		input[i] = 'x'
	}
	for i := 0; i < size; i += 10 {
		input[i] = ','
	}
	for i := 0; i < size; i += 100 {
		input[i] = '\n'
	}
	m := csvMatcher()
	var c Cursor

	b.ReportAllocs()
	b.SetBytes(int64(size))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.Reset(m, input, 0, size)
		for c.Next() >= 0 {
		}
	}
}

func BenchmarkCursorSWAR1KB(b *testing.B)     { benchmarkCursor(b, "swar", 1024) }
func BenchmarkCursorEmulated1KB(b *testing.B) { benchmarkCursor(b, "emulated", 1024) }
func BenchmarkCursorSWAR1MB(b *testing.B)     { benchmarkCursor(b, "swar", 1024*1024) }

// Fuzz test
func FuzzMatch(f *testing.F) {
	f.Add([]byte("a,b,c\n"), []byte(",\n\""))
	f.Add([]byte(`"hello",world`+"\n"), []byte("\"\\"))
	f.Add([]byte{}, []byte{0})

	f.Fuzz(func(t *testing.T, input, targets []byte) {
		if len(targets) == 0 {
			return
		}
		if len(targets) > Width {
			targets = targets[:Width]
		}
		m := NewMatcher(targets...)
		var w [Width]byte
		n := copy(w[:], input)
		if a, b := matchSWAR(m, &w, n), matchEmulated(m, &w, n); a != b {
			t.Errorf("swar %016b != emulated %016b", a, b)
		}
	})
}
