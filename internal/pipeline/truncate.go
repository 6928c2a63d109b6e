package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// DefaultLimit is the character budget used when neither the call nor the
// tool sets one.
const DefaultLimit = 8000

// Truncator replaces the default truncation of a tool's formatted output.
type Truncator interface {
	TruncateForLLM(formatted string, args json.RawMessage) (string, bool)
}

// OutputLimiter overrides the default character budget for a tool.
type OutputLimiter interface {
	DefaultOutputLimitChars() int
}

// ExternalTruncationSkipper marks tools that bound their own output.
type ExternalTruncationSkipper interface {
	SkipExternalTruncate() bool
}

// Truncate keeps the head and the tail of content so that at most limit
// characters of the original survive. Characters are counted as runes.
// The first ceil(limit/2) and last floor(limit/2) runes are joined by a
// marker stating how many were dropped. A limit of zero or less disables
// truncation.
func Truncate(content string, limit int) (string, bool) {
	if limit <= 0 {
		return content, false
	}
	runes := []rune(content)
	if len(runes) <= limit {
		return content, false
	}
	head := (limit + 1) / 2
	tail := limit / 2
	omitted := len(runes) - limit
	return string(runes[:head]) +
		fmt.Sprintf("\n\n... [%d characters omitted] ...\n\n", omitted) +
		string(runes[len(runes)-tail:]), true
}

// ResolveLimit picks the character budget for a call. An explicit "limit"
// argument wins, but only for tools whose schema declares that property.
// Then the tool's own default, then fallback.
func ResolveLimit(subject any, schema, args json.RawMessage, fallback int) int {
	if declaresLimit(schema) {
		var in struct {
			Limit *float64 `json:"limit"`
		}
		if err := json.Unmarshal(args, &in); err == nil && in.Limit != nil {
			return limitFromArg(*in.Limit)
		}
	}
	if l, ok := subject.(OutputLimiter); ok {
		return l.DefaultOutputLimitChars()
	}
	return fallback
}

// limitFromArg converts a JSON number to a budget. Positive fractions round
// up so they never turn into the unbounded zero; the result is clamped to
// the int32 range.
func limitFromArg(v float64) int {
	if v > 0 {
		v = math.Ceil(v)
	} else {
		v = math.Floor(v)
	}
	return int(max(math.MinInt32, min(v, math.MaxInt32)))
}

func declaresLimit(schema json.RawMessage) bool {
	if len(bytes.TrimSpace(schema)) == 0 {
		return false
	}
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return false
	}
	_, ok := s.Properties["limit"]
	return ok
}
