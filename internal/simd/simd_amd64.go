//go:build amd64

package simd

import "golang.org/x/sys/cpu"

// Features lists the vector extensions reported by the CPU.
func Features() []string {
	var fs []string
	if cpu.X86.HasSSE42 {
		fs = append(fs, "sse4.2")
	}
	if cpu.X86.HasPOPCNT {
		fs = append(fs, "popcnt")
	}
	if cpu.X86.HasAVX2 {
		fs = append(fs, "avx2")
	}
	if cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW {
		fs = append(fs, "avx512bw")
	}
	return fs
}
