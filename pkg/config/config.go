// Package config holds the ambient, engine-wide settings that sit outside
// the per-call FetchOptions accepted by pkg/repodata: the cache directory
// root, HTTP transport tuning, and the variant-probe TTL.
package config

import (
	"net/http"
	"time"
)

const (
	// defaultHTTPTimeout is the default overall timeout applied to a single
	// HTTP request issued by the engine.
	defaultHTTPTimeout = 30 * time.Second
	// defaultMaxIdleConnsPerHost is the default transport connection reuse
	// limit per host.
	defaultMaxIdleConnsPerHost = 8
	// DefaultVariantProbeTTL is the default freshness window for variant
	// capability probes, matching the engine's built-in constant.
	DefaultVariantProbeTTL = 14 * 24 * time.Hour
)

// Config holds settings shared across fetches against a single cache root.
type Config struct {
	// CacheRoot is the directory under which index, state, and lock files
	// are stored.
	CacheRoot string
	// HTTPTimeout bounds a single HTTP request's round trip.
	HTTPTimeout time.Duration
	// MaxIdleConnsPerHost tunes connection reuse for the HTTP transport.
	MaxIdleConnsPerHost int
	// VariantProbeTTL is how long a capability probe result is considered
	// fresh. Config does not apply it itself; it takes effect when passed to
	// repodata.Engine.WithVariantProbeTTL.
	VariantProbeTTL time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithCacheRoot sets the cache directory root.
func WithCacheRoot(path string) Option {
	return func(c *Config) {
		c.CacheRoot = path
	}
}

// WithHTTPTimeout overrides the per-request HTTP timeout.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HTTPTimeout = timeout
	}
}

// WithVariantProbeTTL overrides the capability-probe freshness window.
func WithVariantProbeTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.VariantProbeTTL = ttl
	}
}

// NewDefault constructs a Config rooted at cacheRoot with the engine's
// default timeouts and probe TTL, then applies opts in order.
func NewDefault(cacheRoot string, opts ...Option) *Config {
	config := &Config{
		CacheRoot:           cacheRoot,
		HTTPTimeout:         defaultHTTPTimeout,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		VariantProbeTTL:     DefaultVariantProbeTTL,
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// NewHTTPClient constructs an *http.Client suitable for use with
// repodata.NewEngine. Transparent gzip decompression is disabled so the
// engine's manual Content-Encoding handling sees accurate wire byte counts.
func (c *Config) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DisableCompression:  true,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   c.HTTPTimeout,
	}
}
