package repodata

import (
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2s"

	"github.com/cisaacstern/rattler/pkg/cachelock"
	"github.com/cisaacstern/rattler/pkg/encoding"
)

// NormalizeSubdirURL strips any trailing slashes from u and appends exactly
// one, producing the canonical subdirectory URL used as the key for all
// derived cache paths. Normalization is idempotent.
func NormalizeSubdirURL(u string) string {
	return strings.TrimRight(u, "/") + "/"
}

// cacheKey derives the stable, filesystem-safe cache key for a normalized
// subdirectory URL: a BLAKE2s-256 digest of the URL, base62-encoded. The
// engine never interprets the key beyond using it as a filename component.
func cacheKey(subdirURL string) string {
	digest := blake2s.Sum256([]byte(subdirURL))
	return encoding.EncodeBase62(digest[:])
}

// Paths holds the three file paths derived from a cache directory and
// subdirectory URL: the decompressed index, its sidecar state record, and
// the advisory lock file that serializes access to the pair.
type Paths struct {
	// Index is the path to the decompressed repodata index.
	Index string
	// State is the path to the sidecar state record.
	State string
	// Lock is the path to the advisory cross-process lock file.
	Lock string
}

// DerivePaths computes the cache paths for subdirURL (which must already be
// normalized via NormalizeSubdirURL) rooted at cacheDir.
func DerivePaths(cacheDir, subdirURL string) Paths {
	key := cacheKey(subdirURL)
	return Paths{
		Index: filepath.Join(cacheDir, key+".json"),
		State: filepath.Join(cacheDir, key+".state.json"),
		Lock:  filepath.Join(cacheDir, key+".lock"),
	}
}

// LockHandle wraps the cross-process lock held across the critical region of
// a single fetch. Release is guaranteed by the orchestrator on every exit
// path, but is also exposed for callers that hold a CachedRepoData beyond
// the call that produced it.
type LockHandle struct {
	handle *cachelock.Handle
}

// Release unlocks and closes the underlying lock file. It is safe to call at
// most once.
func (h *LockHandle) Release() error {
	if h == nil || h.handle == nil {
		return nil
	}
	return h.handle.Release()
}

func acquireLock(lockPath string) (*LockHandle, error) {
	handle, err := cachelock.Acquire(lockPath)
	if err != nil {
		return nil, err
	}
	return &LockHandle{handle: handle}, nil
}
