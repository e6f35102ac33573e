package repodata

import "errors"

// These are the error kinds surfaced by the fetch-and-cache engine. Callers
// that need to distinguish them should use errors.Is against these sentinels;
// the concrete error returned from Fetch is either the sentinel itself or the
// sentinel wrapped with additional context via fmt.Errorf("%w: ...", ...).
var (
	// ErrFailedToAcquireLock indicates that the per-cache-key lock could not
	// be obtained due to an OS-level error.
	ErrFailedToAcquireLock = errors.New("failed to acquire cache lock")

	// ErrHTTP indicates a network transport failure, TLS failure, or an
	// unexpected (non-2xx, non-304) HTTP response status.
	ErrHTTP = errors.New("http request failed")

	// ErrFailedToDownload indicates an I/O failure while streaming the
	// response body.
	ErrFailedToDownload = errors.New("failed to download repodata")

	// ErrFailedToCreateTempFile indicates that the temporary file used to
	// stage a download could not be created.
	ErrFailedToCreateTempFile = errors.New("failed to create temporary file")

	// ErrFailedToPersistTempFile indicates that the temporary file could not
	// be renamed into place at the index path.
	ErrFailedToPersistTempFile = errors.New("failed to persist temporary file")

	// ErrFailedToGetMetadata indicates that the index file's metadata could
	// not be read after it was persisted.
	ErrFailedToGetMetadata = errors.New("failed to read index file metadata")

	// ErrFailedToWriteCacheState indicates that the sidecar state file could
	// not be written.
	ErrFailedToWriteCacheState = errors.New("failed to write cache state")

	// ErrNoCacheAvailable indicates that the cache-action policy forbade a
	// network fetch and no usable cache entry existed.
	ErrNoCacheAvailable = errors.New("no cache available")

	// ErrCancelled indicates that the calling context was canceled before the
	// fetch completed.
	ErrCancelled = errors.New("fetch cancelled")

	// errProtocolViolation indicates an internal invariant violation: a 304
	// response was received with no prior cache state to revalidate against.
	// It is not part of the public error taxonomy and is always wrapped in
	// ErrHTTP before it reaches a caller.
	errProtocolViolation = errors.New("304 response received without prior cache state")
)
