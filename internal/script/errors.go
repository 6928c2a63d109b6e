package script

import "errors"

var (
	// ErrEmptyScript is returned when the script argument is blank.
	ErrEmptyScript = errors.New("script must not be empty")

	// ErrInvalidArguments is returned when the call arguments cannot be decoded.
	ErrInvalidArguments = errors.New("invalid script arguments")

	// ErrScriptTimeout is returned when a script does not settle in time.
	ErrScriptTimeout = errors.New("script timed out")

	// ErrScriptFailed is returned when a script throws or rejects.
	ErrScriptFailed = errors.New("script failed")

	// ErrFormalize is returned when FORMALIZE cannot produce JSON.
	ErrFormalize = errors.New("formalize failed")
)
