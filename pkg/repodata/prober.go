package repodata

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// VariantProbeTTL is the duration a capability probe result remains fresh
// before it must be re-measured.
const VariantProbeTTL = 14 * 24 * time.Hour

// VariantAvailability reports whether compressed variants of a subdirectory
// index were found to be available, each paired with when that was last
// confirmed.
type VariantAvailability struct {
	HasZst *Expiring
	HasBz2 *Expiring
}

// probe determines the availability of zst and bz2 variants of subdirURL.
// Fresh cached values are reused as-is; stale or missing ones trigger a HEAD
// request. The zst and bz2 probes run concurrently whenever both are
// actually needed. The bz2 probe (and its cached value's freshness) is
// skipped entirely whenever the cached zst value is already known-true,
// since the downloader prefers zst over bz2 in that case regardless of what
// a fresh bz2 probe would say.
func probe(ctx context.Context, client *http.Client, subdirURL string, prior *State, now func() time.Time, ttl time.Duration) VariantAvailability {
	var cachedZst, cachedBz2 *Expiring
	if prior != nil {
		if prior.HasZst.Fresh(now(), ttl) {
			cachedZst = prior.HasZst
		}
		if prior.HasBz2.Fresh(now(), ttl) {
			cachedBz2 = prior.HasBz2
		}
	}

	var wg sync.WaitGroup
	var result VariantAvailability

	wg.Add(2)

	go func() {
		defer wg.Done()
		if cachedZst != nil {
			result.HasZst = cachedZst
			return
		}
		value := headOK(ctx, client, subdirURL+"repodata.json.zst")
		result.HasZst = &Expiring{Value: value, LastChecked: now()}
	}()

	go func() {
		defer wg.Done()
		if cachedZst != nil && cachedZst.Value {
			// zst is already known-good from cache; bz2's value wouldn't
			// affect variant selection, so just carry the prior state
			// forward unchanged (even if it happens to be stale).
			if prior != nil {
				result.HasBz2 = prior.HasBz2
			}
			return
		}
		if cachedBz2 != nil {
			result.HasBz2 = cachedBz2
			return
		}
		value := headOK(ctx, client, subdirURL+"repodata.json.bz2")
		result.HasBz2 = &Expiring{Value: value, LastChecked: now()}
	}()

	wg.Wait()
	return result
}

// headOK issues a HEAD request for url and reports whether the server
// responded with a successful status. Any network error is treated as
// unavailable.
func headOK(ctx context.Context, client *http.Client, url string) bool {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	response, err := client.Do(request)
	if err != nil {
		return false
	}
	defer response.Body.Close()

	return response.StatusCode >= 200 && response.StatusCode < 300
}
