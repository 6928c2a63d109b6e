package pipeline

import "errors"

var (
	// ErrFormat is returned when a tool's formatter or the JSON fallback fails.
	ErrFormat = errors.New("format result")

	// ErrCacheFile is returned for cache paths outside the cache directory.
	ErrCacheFile = errors.New("invalid cache file")
)
