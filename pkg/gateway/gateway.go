// Package gateway provides a convenience wrapper for fetching several
// subdirectory indexes at once. It is additive to, not part of, the
// fetch-and-cache core in pkg/repodata: the per-subdirectory correctness
// guarantees all live in repodata.Engine.Fetch, and this package only adds
// bounded concurrent fan-out across independent cache keys.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/cisaacstern/rattler/pkg/logging"
	"github.com/cisaacstern/rattler/pkg/repodata"
)

// Result is the outcome of fetching a single subdirectory URL.
type Result struct {
	Data *repodata.CachedRepoData
	Err  error
}

// Gateway fans fetches for multiple subdirectory URLs out across goroutines,
// bounded by a fixed concurrency limit, and joins their results.
type Gateway struct {
	engine      *repodata.Engine
	concurrency int
}

// New constructs a Gateway around an existing engine. concurrency bounds how
// many fetches may be in flight at once; values less than 1 are treated as 1.
func New(client *http.Client, logger *logging.Logger, concurrency int) *Gateway {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Gateway{
		engine:      repodata.NewEngine(client, logger),
		concurrency: concurrency,
	}
}

// FetchAll fetches every subdirectory URL in subdirURLs against the same
// cache directory, returning a map from URL to its individual Result. Each
// subdirectory's lock is independent, so failures or slow fetches for one
// subdirectory do not block the others beyond the shared concurrency limit.
//
// Callers are responsible for releasing every returned Result.Data.Lock.
func (g *Gateway) FetchAll(ctx context.Context, subdirURLs []string, dir string, options repodata.FetchOptions) map[string]Result {
	results := make(map[string]Result, len(subdirURLs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, g.concurrency)

	for _, subdirURL := range subdirURLs {
		subdirURL := subdirURL
		wg.Add(1)
		semaphore <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			data, err := g.engine.Fetch(ctx, subdirURL, dir, options)

			mu.Lock()
			results[subdirURL] = Result{Data: data, Err: err}
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}
