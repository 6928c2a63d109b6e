package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Formatter renders data as text. Tools implement it to replace the JSON
// encoding of their result.
type Formatter interface {
	FormatForLLM(data any, args json.RawMessage) (string, error)
}

// Format renders data for the model. A subject implementing Formatter is
// used as-is; anything else is JSON encoded without HTML escaping, so a
// string datum becomes a quoted JSON string and "<", ">" and "&" stay
// literal.
func Format(subject any, data any, args json.RawMessage) (string, error) {
	if f, ok := subject.(Formatter); ok {
		text, err := f.FormatForLLM(data, args)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return text, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
