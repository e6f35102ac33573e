package repodata

import (
	"strconv"
	"strings"
	"time"
)

// cacheControlDirectives is the narrow parse of a Cache-Control header value
// that the validator needs: whether the response was marked public, and its
// max-age directive, if any. Directives this engine doesn't act on (no-cache,
// private, s-maxage, must-revalidate, ...) are intentionally not modeled; a
// header naming only those is treated the same as one with unrecognized
// shape, which the validator maps to OutOfDate.
type cacheControlDirectives struct {
	public bool
	maxAge time.Duration
	hasMax bool
}

// parseCacheControl parses a Cache-Control header value into its directives.
// It returns ok = false if the header is empty or its max-age value is not an
// integer.
func parseCacheControl(header string) (cacheControlDirectives, bool) {
	var directives cacheControlDirectives

	header = strings.TrimSpace(header)
	if header == "" {
		return directives, false
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, _ := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(strings.Trim(value, `"`))

		switch name {
		case "public":
			directives.public = true
		case "max-age":
			seconds, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return cacheControlDirectives{}, false
			}
			directives.maxAge = time.Duration(seconds) * time.Second
			directives.hasMax = true
		}
	}

	return directives, true
}
