//go:build windows

package sink

import (
	"os"
)

// lockFile is a no-op on Windows; appends rely on O_APPEND alone.
// TODO: lock with windows.LockFileEx.
func lockFile(file *os.File) error {
	return nil
}

// unlockFile releases the lock
func unlockFile(file *os.File) error {
	return nil
}
