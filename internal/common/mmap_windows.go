//go:build windows

package common

import (
	"io"
	"os"
)

// MmapFile reads the whole file into memory; Windows has no mapping here.
// TODO: map with windows.CreateFileMapping once x/sys/windows is wired.
func MmapFile(f *os.File) ([]byte, error) {
	return io.ReadAll(f)
}

// MunmapFile is a no-op for data read by MmapFile.
func MunmapFile(data []byte) error {
	return nil
}
