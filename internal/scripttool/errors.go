package scripttool

import "errors"

var (
	// ErrStaleSidecar is returned when a sidecar is missing or older than
	// its script and no parser is configured to regenerate it.
	ErrStaleSidecar = errors.New("script sidecar is stale")

	// ErrInvalidSidecar is returned for sidecars that cannot be decoded.
	ErrInvalidSidecar = errors.New("invalid script sidecar")

	// ErrParser is returned when the parser process fails.
	ErrParser = errors.New("script parser failed")

	// ErrUnsupportedScript is returned for files without a configured language.
	ErrUnsupportedScript = errors.New("unsupported script type")

	// ErrScriptProcess is returned when a script exits non-zero or prints
	// something other than a response.
	ErrScriptProcess = errors.New("script process failed")
)
