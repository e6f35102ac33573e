package repodata

import (
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/cisaacstern/rattler/pkg/logging"
)

const testSubdirURL = "http://localhost/channels/empty/"

func writeIndexAndState(t *testing.T, dir string, contents []byte, state State) Paths {
	t.Helper()
	paths := DerivePaths(dir, testSubdirURL)
	if err := os.WriteFile(paths.Index, contents, 0644); err != nil {
		t.Fatalf("failed to write index fixture: %s", err)
	}
	if err := storeState(paths.State, state); err != nil {
		t.Fatalf("failed to write state fixture: %s", err)
	}
	return paths
}

func baseState(t *testing.T, indexPath string, cacheControl string) State {
	t.Helper()
	info, err := os.Stat(indexPath)
	if err != nil {
		t.Fatalf("failed to stat index fixture: %s", err)
	}
	return State{
		URL:               testSubdirURL + "repodata.json",
		CacheHeaders:      CacheHeaders{CacheControl: cacheControl},
		CacheLastModified: info.ModTime(),
		CacheSize:         info.Size(),
	}
}

func TestValidateMissingIndexIsInvalidOrMissing(t *testing.T) {
	dir := t.TempDir()
	paths := DerivePaths(dir, testSubdirURL)
	_ = os.WriteFile(paths.State, []byte(`{}`), 0644)

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != InvalidOrMissing {
		t.Errorf("expected InvalidOrMissing, got %v", result.Kind)
	}
}

func TestValidateMissingStateIsInvalidOrMissing(t *testing.T) {
	dir := t.TempDir()
	paths := DerivePaths(dir, testSubdirURL)
	_ = os.WriteFile(paths.Index, []byte("{}"), 0644)

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != InvalidOrMissing {
		t.Errorf("expected InvalidOrMissing, got %v", result.Kind)
	}
}

func TestValidateDifferentSubdirURLIsInvalidOrMissing(t *testing.T) {
	dir := t.TempDir()
	paths := DerivePaths(dir, testSubdirURL)
	_ = os.WriteFile(paths.Index, []byte("{}"), 0644)
	state := baseState(t, paths.Index, "public, max-age=1200")
	state.URL = "http://localhost/channels/other/repodata.json"
	_ = storeState(paths.State, state)

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != InvalidOrMissing {
		t.Errorf("expected InvalidOrMissing for a state record naming a different subdirectory, got %v", result.Kind)
	}
}

func TestValidateSizeMismatchIsMismatched(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "public, max-age=1200")
	state.CacheSize = state.CacheSize + 1
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != Mismatched {
		t.Errorf("expected Mismatched for a size mismatch, got %v", result.Kind)
	}
}

func TestValidateMtimeMismatchIsMismatched(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "public, max-age=1200")
	state.CacheLastModified = state.CacheLastModified.Add(-time.Hour)
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != Mismatched {
		t.Errorf("expected Mismatched for an mtime mismatch, got %v", result.Kind)
	}
}

func TestValidateHashAuthoritativeOverSizeAndMtime(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`{"some":"data"}`)
	paths := writeIndexAndState(t, dir, contents, State{})
	state := baseState(t, paths.Index, "public, max-age=1200")
	// Deliberately wrong size/mtime, but a correct hash: hash should win.
	state.CacheSize = state.CacheSize + 999
	state.CacheLastModified = state.CacheLastModified.Add(-time.Hour)
	digest, err := hashFile(paths.Index)
	if err != nil {
		t.Fatal(err)
	}
	state.Blake2Hash = hex.EncodeToString(digest)
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind == Mismatched {
		t.Error("a correct hash should be authoritative over stale size/mtime fields")
	}
}

func TestValidateHashMismatchIsMismatched(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`{"some":"data"}`)
	paths := writeIndexAndState(t, dir, contents, State{})
	state := baseState(t, paths.Index, "public, max-age=1200")
	state.Blake2Hash = "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != Mismatched {
		t.Errorf("expected Mismatched for a hash mismatch, got %v", result.Kind)
	}
}

func TestValidateClockSetBackwardsIsMismatched(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "public, max-age=1200")
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	past := func() time.Time { return state.CacheLastModified.Add(-time.Hour) }
	result := validate(paths, testSubdirURL, past, logging.RootLogger)
	if result.Kind != Mismatched {
		t.Errorf("expected Mismatched when the clock appears to have moved backwards, got %v", result.Kind)
	}
}

func TestValidateNoCacheControlIsOutOfDate(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "")
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != OutOfDate {
		t.Errorf("expected OutOfDate when no Cache-Control was recorded, got %v", result.Kind)
	}
}

func TestValidateUnparseableCacheControlIsMismatched(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "max-age=not-a-number")
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != Mismatched {
		t.Errorf("expected Mismatched for an unparseable Cache-Control header, got %v", result.Kind)
	}
}

func TestValidateWithinMaxAgeIsUpToDate(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "public, max-age=1200")
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != UpToDate {
		t.Errorf("expected UpToDate within the max-age window, got %v", result.Kind)
	}
}

func TestValidatePastMaxAgeIsOutOfDate(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "public, max-age=1")
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	future := func() time.Time { return state.CacheLastModified.Add(2 * time.Second) }
	result := validate(paths, testSubdirURL, future, logging.RootLogger)
	if result.Kind != OutOfDate {
		t.Errorf("expected OutOfDate once max-age has elapsed, got %v", result.Kind)
	}
}

func TestValidateOtherCacheControlShapeIsOutOfDate(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "private")
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	result := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if result.Kind != OutOfDate {
		t.Errorf("expected OutOfDate for a Cache-Control shape this engine doesn't specially recognize, got %v", result.Kind)
	}
}

func TestValidateIsPureFunctionOfDiskState(t *testing.T) {
	dir := t.TempDir()
	paths := writeIndexAndState(t, dir, []byte("{}"), State{})
	state := baseState(t, paths.Index, "public, max-age=1200")
	if err := storeState(paths.State, state); err != nil {
		t.Fatal(err)
	}

	first := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	second := validate(paths, testSubdirURL, time.Now, logging.RootLogger)
	if first.Kind != second.Kind {
		t.Errorf("repeated validation of unchanged disk state produced different results: %v != %v", first.Kind, second.Kind)
	}
}

func TestSubdirOfCollapsesFinalSegment(t *testing.T) {
	cases := []struct {
		url      string
		expected string
	}{
		{"https://host/ch/linux-64/repodata.json", "https://host/ch/linux-64/"},
		{"https://host/ch/linux-64/repodata.json.zst", "https://host/ch/linux-64/"},
		{"https://host/ch/linux-64/", "https://host/ch/linux-64/"},
	}
	for _, c := range cases {
		if got := subdirOf(c.url); got != c.expected {
			t.Errorf("subdirOf(%q) = %q, expected %q", c.url, got, c.expected)
		}
	}
}
