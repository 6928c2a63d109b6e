package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Default argument limits.
const (
	DefaultMaxArgumentBytes = 1 << 20
	DefaultMaxJSONDepth     = 32
)

// Validation errors.
var (
	ErrArgumentsTooLarge = errors.New("arguments exceed maximum size")
	ErrJSONTooDeep       = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON       = errors.New("invalid JSON")
	ErrNotObject         = errors.New("arguments must be a JSON object")
)

// ArgumentLimits bounds tool arguments received from outside the process.
// Zero fields use the defaults.
type ArgumentLimits struct {
	MaxBytes int `yaml:"max_bytes"`
	MaxDepth int `yaml:"max_depth"`
}

// Check validates size, nesting depth and shape. Empty input is accepted
// and means no arguments.
func (l ArgumentLimits) Check(data []byte) error {
	maxBytes := l.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArgumentBytes
	}
	if len(data) > maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrArgumentsTooLarge, len(data), maxBytes)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' {
		return ErrNotObject
	}
	return ValidateJSONDepth(trimmed, l.MaxDepth)
}

// ValidateJSONDepth checks that data is valid JSON nested no deeper than
// limit levels. A limit of zero or less uses DefaultMaxJSONDepth.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if depth != 0 {
					return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
				}
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
