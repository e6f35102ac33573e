// Package repodata implements a validated, content-addressed on-disk cache
// for package-repository subdirectory index files ("repodata"), combining
// HTTP cache-control semantics, opportunistic compressed-variant selection,
// a streaming download pipeline with concurrent decoding and hashing, and
// cross-process locking that keeps each cached index and its sidecar state
// record consistent.
package repodata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cisaacstern/rattler/pkg/logging"
	"github.com/cisaacstern/rattler/pkg/must"
)

// CacheAction selects how aggressively Fetch is permitted to contact the
// network when validating or refreshing a cache entry.
type CacheAction int

const (
	// CacheOrFetch validates the cache and refreshes it over the network
	// when stale or absent. This is the default.
	CacheOrFetch CacheAction = iota
	// UseCacheOnly never contacts the network; a stale or missing cache
	// entry surfaces ErrNoCacheAvailable.
	UseCacheOnly
	// ForceCacheOnly never contacts the network and accepts an existing
	// cache entry even when it is stale (OutOfDate); a missing, invalid or
	// mismatched entry surfaces ErrNoCacheAvailable.
	ForceCacheOnly
	// NoCache skips cache validation entirely and always fetches, as if no
	// prior state existed.
	NoCache
)

// FetchOptions configures a single call to Fetch.
type FetchOptions struct {
	// CacheAction governs whether and how the network may be contacted.
	CacheAction CacheAction
	// Progress, if non-nil, is invoked with streaming download progress.
	// It is only ever called from the goroutine driving Fetch and need not
	// be safe for concurrent use.
	Progress Progress
}

// CachedRepoData is the result of a successful Fetch. Lock is held on
// return; the caller is responsible for calling Lock.Release() once done
// with IndexPath and State.
type CachedRepoData struct {
	Lock        *LockHandle
	IndexPath   string
	State       State
	CacheResult CacheResult
}

// Engine is the entry point for the fetch-and-cache core. Its zero value is
// not usable; construct one with NewEngine.
type Engine struct {
	client          *http.Client
	logger          *logging.Logger
	now             func() time.Time
	variantProbeTTL time.Duration
}

// NewEngine constructs an Engine using client for all HTTP requests and
// logger for diagnostic output. client.Transport should disable transparent
// gzip decompression (see NewHTTPClient in pkg/config) since the downloader
// decodes Content-Encoding: gzip manually in order to track wire byte counts.
// A nil logger is valid and simply discards diagnostics.
func NewEngine(client *http.Client, logger *logging.Logger) *Engine {
	return &Engine{
		client:          client,
		logger:          logger,
		now:             time.Now,
		variantProbeTTL: VariantProbeTTL,
	}
}

// WithVariantProbeTTL overrides the capability-probe freshness window,
// which otherwise defaults to the 14-day VariantProbeTTL constant.
func (e *Engine) WithVariantProbeTTL(ttl time.Duration) *Engine {
	e.variantProbeTTL = ttl
	return e
}

// Fetch acquires the per-subdirectory lock, validates any existing cache
// entry, probes variant availability, and downloads a fresh index when the
// cache-action policy requires it, returning a handle that holds the lock
// until released.
func (e *Engine) Fetch(ctx context.Context, subdirURL string, dir string, options FetchOptions) (*CachedRepoData, error) {
	su := NormalizeSubdirURL(subdirURL)
	paths := DerivePaths(dir, su)

	lock, err := acquireLock(paths.Lock)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFailedToAcquireLock, err)
	}
	// keepLock is set just before every successful return, handing the
	// lock's lifetime to the returned CachedRepoData. On any other exit
	// path (error or panic) the deferred release fires.
	keepLock := false
	defer func() {
		if !keepLock {
			must.Succeed(lock.Release(), "release cache lock", e.logger)
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ErrCancelled
	default:
	}

	var validated ValidatedCacheState
	if options.CacheAction != NoCache {
		validated = validate(paths, su, e.now, e.logger)
	} else {
		validated = ValidatedCacheState{Kind: InvalidOrMissing}
	}

	switch validated.Kind {
	case UpToDate:
		keepLock = true
		return &CachedRepoData{Lock: lock, IndexPath: paths.Index, State: validated.State, CacheResult: CacheHit}, nil
	case OutOfDate:
		if options.CacheAction == UseCacheOnly {
			return nil, ErrNoCacheAvailable
		}
		if options.CacheAction == ForceCacheOnly {
			keepLock = true
			return &CachedRepoData{Lock: lock, IndexPath: paths.Index, State: validated.State, CacheResult: CacheHit}, nil
		}
	case Mismatched, InvalidOrMissing:
		if options.CacheAction == UseCacheOnly || options.CacheAction == ForceCacheOnly {
			return nil, ErrNoCacheAvailable
		}
	}

	var prior *State
	if validated.Kind == OutOfDate || validated.Kind == Mismatched {
		prior = &validated.State
	}

	availability := probe(ctx, e.client, su, prior, e.now, e.variantProbeTTL)

	result, err := download(ctx, e.client, su, availability, prior, paths, options.Progress, e.logger)
	if err != nil {
		return nil, err
	}
	keepLock = true

	return &CachedRepoData{
		Lock:        lock,
		IndexPath:   paths.Index,
		State:       result.state,
		CacheResult: result.result,
	}, nil
}
