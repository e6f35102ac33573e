package repodata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Expiring pairs a value with the time it was last confirmed. It is fresh
// while now - LastChecked <= ttl.
type Expiring struct {
	Value       bool      `json:"value"`
	LastChecked time.Time `json:"last_checked"`
}

// Fresh reports whether e is non-nil and still within ttl of now.
func (e *Expiring) Fresh(now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.LastChecked) <= ttl
}

// CacheHeaders is the subset of HTTP response headers relevant to cache
// validation.
type CacheHeaders struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`
}

// State is the sidecar record describing the index file currently on disk
// for a given cache key: the repo-data state record (RDS).
type State struct {
	URL               string        `json:"url"`
	CacheHeaders      CacheHeaders  `json:"cache_headers"`
	CacheLastModified time.Time     `json:"cache_last_modified"`
	CacheSize         int64         `json:"cache_size"`
	Blake2Hash        string        `json:"blake2_hash,omitempty"`
	HasZst            *Expiring     `json:"has_zst,omitempty"`
	HasBz2            *Expiring     `json:"has_bz2,omitempty"`
	HasJLAP           *Expiring     `json:"has_jlap,omitempty"`
}

// loadState reads and parses the state record at statePath. A missing file
// or unparseable contents are both reported via the returned ok flag rather
// than a distinguishable error, since the validator treats both identically
// (InvalidOrMissing).
func loadState(statePath string) (State, bool) {
	data, err := os.ReadFile(statePath)
	if err != nil {
		return State{}, false
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false
	}

	return state, true
}

// storeState writes state to statePath, creating or truncating as needed.
func storeState(statePath string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode cache state: %w", err)
	}

	if err := os.WriteFile(statePath, data, 0644); err != nil {
		return fmt.Errorf("unable to write cache state: %w", err)
	}

	return nil
}
