// Package cachelock provides the cross-process exclusive locking used to
// serialize access to a cache entry's paired index and state files.
package cachelock

import (
	"os"

	"github.com/pkg/errors"
)

// Handle represents an acquired, exclusive, cross-process lock on a single
// lock file. The lock is advisory: via the platform's native file locking
// primitive it excludes every other Handle on the same file, whether held in
// this process or another, but not code that opens the file without locking.
//
// A Handle is not safe for concurrent use; it is meant to be held by the
// single goroutine that acquired it and released exactly once.
type Handle struct {
	// file is the underlying lock file. Its contents are never read or
	// written; only its descriptor is used to hold the lock.
	file *os.File
}

// Acquire opens (creating if necessary) the file at path and blocks until an
// exclusive lock on it has been obtained. There is no timeout: callers that
// need bounded waiting should race this call against a context via a
// separate goroutine.
func Acquire(path string) (*Handle, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}

	if err := lockExclusive(file); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "unable to acquire lock")
	}

	return &Handle{file: file}, nil
}

// Release unlocks and closes the lock file. It is safe to call at most once;
// callers must guarantee Release runs on every exit path (including panics
// and cancellation) after a successful Acquire.
func (h *Handle) Release() error {
	unlockErr := unlockExclusive(h.file)
	closeErr := h.file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
