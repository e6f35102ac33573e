//go:build windows

// Based on (but heavily modified from)
// https://github.com/golang/build/blob/master/cmd/builder/filemutex_windows.go,
// itself BSD-licensed by the Go Authors.

package cachelock

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32     = windows.NewLazySystemDLL("kernel32.dll")
	lockFileEx   = kernel32.NewProc("LockFileEx")
	unlockFileEx = kernel32.NewProc("UnlockFileEx")
)

const lockfileExclusiveLock = 2

func callLockFileEx(handle syscall.Handle, flags, reserved, lockLow, lockHigh uint32, overlapped *syscall.Overlapped) error {
	r1, _, e1 := syscall.Syscall6(
		lockFileEx.Addr(), 6,
		uintptr(handle), uintptr(flags), uintptr(reserved),
		uintptr(lockLow), uintptr(lockHigh), uintptr(unsafe.Pointer(overlapped)),
	)
	if r1 == 0 {
		if e1 != 0 {
			return error(e1)
		}
		return syscall.EINVAL
	}
	return nil
}

func callUnlockFileEx(handle syscall.Handle, reserved, lockLow, lockHigh uint32, overlapped *syscall.Overlapped) error {
	r1, _, e1 := syscall.Syscall6(
		unlockFileEx.Addr(), 5,
		uintptr(handle), uintptr(reserved), uintptr(lockLow), uintptr(lockHigh),
		uintptr(unsafe.Pointer(overlapped)), 0,
	)
	if r1 == 0 {
		if e1 != 0 {
			return error(e1)
		}
		return syscall.EINVAL
	}
	return nil
}

// lockExclusive blocks until an exclusive lock is held on file.
func lockExclusive(file *os.File) error {
	var overlapped syscall.Overlapped
	return callLockFileEx(syscall.Handle(file.Fd()), lockfileExclusiveLock, 0, 1, 0, &overlapped)
}

// unlockExclusive releases the lock acquired by lockExclusive.
func unlockExclusive(file *os.File) error {
	var overlapped syscall.Overlapped
	return callUnlockFileEx(syscall.Handle(file.Fd()), 0, 1, 0, &overlapped)
}
