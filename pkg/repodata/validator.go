package repodata

import (
	"crypto/subtle"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/blake2s"

	"github.com/cisaacstern/rattler/pkg/logging"
)

// ValidationKind classifies the relationship between on-disk cache state and
// a requested subdirectory URL.
type ValidationKind int

const (
	// InvalidOrMissing indicates there is no usable prior state: the index
	// file is absent, the state file is absent or unparseable, or the state
	// describes a different subdirectory URL entirely.
	InvalidOrMissing ValidationKind = iota
	// Mismatched indicates a state record exists and names this SU, but no
	// longer describes the file on disk. Its capability-probe fields may
	// still be reusable even though its cache_headers/hash are stale.
	Mismatched
	// OutOfDate indicates the state matches the file on disk but the HTTP
	// cache-control freshness window has elapsed.
	OutOfDate
	// UpToDate indicates the state matches the file on disk and is still
	// within its freshness window.
	UpToDate
)

// ValidatedCacheState is the result of validating on-disk cache artifacts
// against a requested subdirectory URL.
type ValidatedCacheState struct {
	Kind  ValidationKind
	State State // zero value when Kind == InvalidOrMissing
}

// subdirOf collapses a URL's final path segment to empty, returning the
// directory URL it belongs to with exactly one trailing slash.
func subdirOf(u string) string {
	if strings.HasSuffix(u, "/") {
		return strings.TrimRight(u, "/") + "/"
	}
	if idx := strings.LastIndex(u, "/"); idx >= 0 {
		return u[:idx+1]
	}
	return u + "/"
}

// validate implements the seven-step cache validation algorithm: it
// classifies the cache entry at paths against subdirURL using the clock
// function now (injected for testability).
func validate(paths Paths, subdirURL string, now func() time.Time, logger *logging.Logger) ValidatedCacheState {
	info, err := os.Stat(paths.Index)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("unable to stat index file: %s", err.Error())
		}
		return ValidatedCacheState{Kind: InvalidOrMissing}
	}

	state, ok := loadState(paths.State)
	if !ok {
		return ValidatedCacheState{Kind: InvalidOrMissing}
	}

	if subdirOf(state.URL) != subdirURL {
		return ValidatedCacheState{Kind: InvalidOrMissing}
	}

	mtime := info.ModTime()

	if state.Blake2Hash != "" {
		actual, err := hashFile(paths.Index)
		if err != nil {
			logger.Warnf("unable to hash index file: %s", err.Error())
			return ValidatedCacheState{Kind: Mismatched, State: state}
		}
		expected, err := hex.DecodeString(state.Blake2Hash)
		if err != nil || subtle.ConstantTimeCompare(actual, expected) != 1 {
			return ValidatedCacheState{Kind: Mismatched, State: state}
		}
	} else if info.Size() != state.CacheSize || !mtime.Equal(state.CacheLastModified) {
		return ValidatedCacheState{Kind: Mismatched, State: state}
	}

	currentTime := now()
	if currentTime.Before(mtime) {
		return ValidatedCacheState{Kind: Mismatched, State: state}
	}
	age := currentTime.Sub(mtime)

	directives, ok := parseCacheControl(state.CacheHeaders.CacheControl)
	if state.CacheHeaders.CacheControl == "" {
		return ValidatedCacheState{Kind: OutOfDate, State: state}
	}
	if !ok {
		return ValidatedCacheState{Kind: Mismatched, State: state}
	}
	if directives.public && directives.hasMax {
		if age > directives.maxAge {
			return ValidatedCacheState{Kind: OutOfDate, State: state}
		}
		return ValidatedCacheState{Kind: UpToDate, State: state}
	}

	return ValidatedCacheState{Kind: OutOfDate, State: state}
}

// hashFile computes the BLAKE2s-256 digest of the file at path.
func hashFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hasher, err := blake2s.New256(nil)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, err
	}

	return hasher.Sum(nil), nil
}
