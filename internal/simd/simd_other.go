//go:build !amd64 && !arm64

package simd

// Features returns nil on platforms without feature detection.
func Features() []string {
	return nil
}
