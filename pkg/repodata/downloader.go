package repodata

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2s"

	"github.com/cisaacstern/rattler/pkg/logging"
	"github.com/cisaacstern/rattler/pkg/must"
	"github.com/cisaacstern/rattler/pkg/stream"
)

// Variant identifies which compressed encoding of the index was selected for
// download.
type Variant int

const (
	// Plain selects the uncompressed repodata.json.
	Plain Variant = iota
	// Zst selects repodata.json.zst.
	Zst
	// Bz2 selects repodata.json.bz2.
	Bz2
)

func (v Variant) filename() string {
	switch v {
	case Zst:
		return "repodata.json.zst"
	case Bz2:
		return "repodata.json.bz2"
	default:
		return "repodata.json"
	}
}

// selectVariant chooses a variant from a probe result: zst if available,
// otherwise bz2, otherwise plain.
func selectVariant(availability VariantAvailability) Variant {
	if availability.HasZst != nil && availability.HasZst.Value {
		return Zst
	}
	if availability.HasBz2 != nil && availability.HasBz2.Value {
		return Bz2
	}
	return Plain
}

// CacheResult classifies what a fetch actually did.
type CacheResult int

const (
	// CacheHit indicates the on-disk cache was used without contacting the
	// network.
	CacheHit CacheResult = iota
	// CacheHitAfterFetch indicates a conditional GET was issued and the
	// server confirmed the cached content was still current (304).
	CacheHitAfterFetch
	// CacheOutdated indicates the index was refreshed, replacing a prior
	// entry.
	CacheOutdated
	// CacheNotPresent indicates the index was downloaded for the first time.
	CacheNotPresent
)

// Progress reports streaming download progress. Bytes is the number of wire
// bytes read so far (before any decoding); Total is the response's
// Content-Length, or -1 if unknown. The first invocation always reports
// Bytes == 0, before any chunk has been read.
type Progress func(bytes uint64, total int64)

// downloadResult bundles the outcome of a single conditional GET.
type downloadResult struct {
	state  State
	result CacheResult
}

// download issues the conditional GET for the selected variant, streams and
// decodes the response, hashes the decoded content, persists it atomically,
// and returns the updated state record.
func download(ctx context.Context, client *http.Client, subdirURL string, availability VariantAvailability, prior *State, paths Paths, progress Progress, logger *logging.Logger) (downloadResult, error) {
	variant := selectVariant(availability)
	selectedURL := subdirURL + variant.filename()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, selectedURL, nil)
	if err != nil {
		return downloadResult{}, fmt.Errorf("%w: unable to build request: %s", ErrHTTP, err)
	}
	request.Header.Set("Accept-Encoding", "gzip")
	if prior != nil {
		if prior.CacheHeaders.ETag != "" {
			request.Header.Set("If-None-Match", prior.CacheHeaders.ETag)
		}
		if prior.CacheHeaders.LastModified != "" {
			request.Header.Set("If-Modified-Since", prior.CacheHeaders.LastModified)
		}
	}

	response, err := client.Do(request)
	if err != nil {
		select {
		case <-ctx.Done():
			return downloadResult{}, ErrCancelled
		default:
		}
		return downloadResult{}, fmt.Errorf("%w: %s", ErrHTTP, err)
	}
	defer must.Close(response.Body, logger)

	if response.StatusCode == http.StatusNotModified {
		if prior == nil {
			return downloadResult{}, fmt.Errorf("%w: %w", ErrHTTP, errProtocolViolation)
		}
		updated := *prior
		updated.URL = selectedURL
		updated.HasZst = availability.HasZst
		updated.HasBz2 = availability.HasBz2
		if err := storeState(paths.State, updated); err != nil {
			return downloadResult{}, fmt.Errorf("%w: %s", ErrFailedToWriteCacheState, err)
		}
		return downloadResult{state: updated, result: CacheHitAfterFetch}, nil
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return downloadResult{}, fmt.Errorf("%w: unexpected status %s", ErrHTTP, response.Status)
	}

	state, err := streamToFile(ctx, response, paths, variant, selectedURL, availability, prior, progress, logger)
	if err != nil {
		return downloadResult{}, err
	}

	if err := storeState(paths.State, state); err != nil {
		return downloadResult{}, fmt.Errorf("%w: %s", ErrFailedToWriteCacheState, err)
	}

	result := CacheNotPresent
	if prior != nil {
		result = CacheOutdated
	}
	return downloadResult{state: state, result: result}, nil
}

// streamCopyPreemptionInterval bounds how many writes to the destination
// file are allowed between cancellation checks, in turn bounding the
// maximum cancellation latency for a single streamed download.
const streamCopyPreemptionInterval = 1024

// streamToFile drives the three-stage streaming pipeline: raw bytes (with
// progress reporting) -> transfer decode -> content decode, forking the
// decoded bytes into a temp file and a BLAKE2s-256 hasher, then atomically
// renaming the temp file into place.
func streamToFile(ctx context.Context, response *http.Response, paths Paths, variant Variant, selectedURL string, availability VariantAvailability, prior *State, progress Progress, logger *logging.Logger) (State, error) {
	contentLength := response.ContentLength

	if progress != nil {
		progress(0, contentLength)
	}

	var totalBytes uint64
	countingReader := &countingReader{
		reader: response.Body,
		onRead: func(n int) {
			totalBytes += uint64(n)
			if progress != nil {
				progress(totalBytes, contentLength)
			}
		},
	}

	transferDecoded, err := decodeTransferEncoding(countingReader, response.Header.Get("Content-Encoding"))
	if err != nil {
		return State{}, fmt.Errorf("%w: %s", ErrFailedToDownload, err)
	}
	var transferCloser, contentCloser io.Closer
	if closer, ok := transferDecoded.(io.Closer); ok {
		transferCloser = closer
	}

	contentDecoded, err := decodeContentEncoding(transferDecoded, variant)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s", ErrFailedToDownload, err)
	}
	if closer, ok := contentDecoded.(io.Closer); ok {
		contentCloser = closer
	}

	// NewMultiCloser closes in the order given, higher layers before lower:
	// the content decoder (outer, reads from the transfer decoder) closes
	// before the transfer decoder (inner, reads from the wire) it depends on.
	var decodeClosers []io.Closer
	if contentCloser != nil {
		decodeClosers = append(decodeClosers, contentCloser)
	}
	if transferCloser != nil {
		decodeClosers = append(decodeClosers, transferCloser)
	}
	defer stream.NewMultiCloser(decodeClosers...).Close()

	temp, err := os.CreateTemp(filepath.Dir(paths.Index), ".repodata-"+uuid.NewString())
	if err != nil {
		return State{}, fmt.Errorf("%w: %s", ErrFailedToCreateTempFile, err)
	}
	tempRemoved := false
	defer func() {
		if !tempRemoved {
			must.OSRemove(temp.Name(), logger)
		}
	}()

	hasher, err := blake2s.New256(nil)
	if err != nil {
		temp.Close()
		return State{}, fmt.Errorf("%w: %s", ErrFailedToDownload, err)
	}

	hashedWriter := stream.NewHashedWriter(temp, hasher)
	preemptableWriter := stream.NewPreemptableWriter(hashedWriter, ctx.Done(), streamCopyPreemptionInterval)
	if _, err := io.Copy(preemptableWriter, contentDecoded); err != nil {
		temp.Close()
		if errors.Is(err, stream.ErrWritePreempted) || ctx.Err() != nil {
			return State{}, ErrCancelled
		}
		return State{}, fmt.Errorf("%w: %s", ErrFailedToDownload, err)
	}

	if err := temp.Close(); err != nil {
		return State{}, fmt.Errorf("%w: %s", ErrFailedToPersistTempFile, err)
	}

	if err := os.Rename(temp.Name(), paths.Index); err != nil {
		return State{}, fmt.Errorf("%w: %s", ErrFailedToPersistTempFile, err)
	}
	tempRemoved = true

	info, err := os.Stat(paths.Index)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s", ErrFailedToGetMetadata, err)
	}

	logger.Debugf("streamed %s from %s (%s decoded)",
		humanize.Bytes(totalBytes), selectedURL, humanize.Bytes(uint64(info.Size())))

	var hasJLAP *Expiring
	if prior != nil {
		hasJLAP = prior.HasJLAP
	}

	return State{
		URL: selectedURL,
		CacheHeaders: CacheHeaders{
			ETag:         response.Header.Get("ETag"),
			LastModified: response.Header.Get("Last-Modified"),
			CacheControl: response.Header.Get("Cache-Control"),
		},
		CacheLastModified: info.ModTime(),
		CacheSize:         info.Size(),
		Blake2Hash:        hex.EncodeToString(hasher.Sum(nil)),
		HasZst:            availability.HasZst,
		HasBz2:            availability.HasBz2,
		HasJLAP:           hasJLAP,
	}, nil
}

// countingReader wraps an io.Reader, invoking onRead with the number of
// bytes returned by each successful Read.
type countingReader struct {
	reader io.Reader
	onRead func(n int)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.onRead(n)
	}
	return n, err
}

// decodeTransferEncoding removes the HTTP transfer-level encoding. Only
// gzip is modeled, decoded manually since the client disables transparent
// decompression (see http.Transport.DisableCompression in the client
// constructed by pkg/config).
func decodeTransferEncoding(r io.Reader, contentEncoding string) (io.Reader, error) {
	if contentEncoding == "" {
		return r, nil
	}
	if contentEncoding == "gzip" {
		return gzip.NewReader(r)
	}
	return nil, fmt.Errorf("unsupported transfer encoding %q", contentEncoding)
}

// decodeContentEncoding removes the content-level encoding intrinsic to the
// selected variant.
func decodeContentEncoding(r io.Reader, variant Variant) (io.Reader, error) {
	switch variant {
	case Zst:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &zstdReadCloser{decoder}, nil
	case Bz2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// zstdReadCloser adapts *zstd.Decoder (whose Close method doesn't return an
// error) to io.ReadCloser.
type zstdReadCloser struct {
	decoder *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.decoder.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.decoder.Close()
	return nil
}
