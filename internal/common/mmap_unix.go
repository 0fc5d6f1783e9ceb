//go:build unix

package common

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MmapFile maps the whole file read-only. An empty file maps to an empty
// slice.
func MmapFile(f *os.File) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return []byte{}, nil
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("mmap %s: file too large (%d bytes)", f.Name(), size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	// the scan is a single forward pass
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
	return data, nil
}

// MunmapFile unmaps data returned by MmapFile.
func MunmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
