//go:build !windows && !plan9

package cachelock

import (
	"os"
	"syscall"
)

// lockExclusive blocks until an exclusive BSD file lock is held on file.
func lockExclusive(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_EX)
}

// unlockExclusive releases the lock acquired by lockExclusive.
func unlockExclusive(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
}
