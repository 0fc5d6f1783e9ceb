//go:build !unix && !windows

package common

import (
	"io"
	"os"
)

// MmapFile reads the whole file into memory.
func MmapFile(f *os.File) ([]byte, error) {
	return io.ReadAll(f)
}

// MunmapFile is a no-op for data read by MmapFile.
func MunmapFile(data []byte) error {
	return nil
}
