//go:build arm64

package simd

import "golang.org/x/sys/cpu"

// Features lists the vector extensions reported by the CPU.
func Features() []string {
	var fs []string
	if cpu.ARM64.HasASIMD {
		fs = append(fs, "neon")
	}
	if cpu.ARM64.HasSVE {
		fs = append(fs, "sve")
	}
	return fs
}
