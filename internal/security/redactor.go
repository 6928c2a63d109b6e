package security

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches object keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|passwd|api_?key|credential|authorization)`)

// Redactor replaces secrets in strings, maps and JSON documents. It knows
// common API key formats by pattern and runtime credentials by value.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a pattern whose matches are redacted.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a secret value. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// SyncCredentials replaces the literal values with the store's contents.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Redact replaces known patterns and literal secrets in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap redacts m in place. String values under secret-looking keys
// are replaced outright; every other string goes through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
		return val
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
		return val
	case string:
		return r.Redact(val)
	default:
		return v
	}
}

// RedactJSON redacts a JSON document such as tool arguments. Documents that
// do not decode are redacted as plain text.
func (r *Redactor) RedactJSON(raw []byte) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []byte(r.Redact(string(raw)))
	}
	if m, ok := v.(map[string]any); ok {
		r.RedactMap(m)
		v = m
	} else {
		v = r.redactValue(v)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return []byte(r.Redact(string(raw)))
	}
	return out
}

// DefaultPatterns returns patterns for common API key formats.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Anthropic before OpenAI so the longer prefix wins.
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`sk-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		regexp.MustCompile(`xox[bp]-[0-9]+-[a-zA-Z0-9\-]+`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.=]{16,}`),
	}
}
