package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate_PassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		limit   int
	}{
		{"under limit", "hello", 10},
		{"at limit", "hello", 5},
		{"unbounded zero", strings.Repeat("x", 100), 0},
		{"unbounded negative", strings.Repeat("x", 100), -1},
		{"runes not bytes", "héllo", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, truncated := Truncate(tt.content, tt.limit)
			if truncated || got != tt.content {
				t.Errorf("Truncate(%q, %d) = %q, %v", tt.content, tt.limit, got, truncated)
			}
		})
	}
}

func TestTruncate_HeadAndTail(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{1, 2, 7, 10, 11} {
		content := "abcdefghijklmnopqrstuvwxyz"
		got, truncated := Truncate(content, limit)
		if !truncated {
			t.Fatalf("limit %d: expected truncation", limit)
		}
		head := (limit + 1) / 2
		tail := limit / 2
		marker := fmt.Sprintf("\n\n... [%d characters omitted] ...\n\n", len(content)-limit)
		want := content[:head] + marker + content[len(content)-tail:]
		if got != want {
			t.Errorf("limit %d:\n got %q\nwant %q", limit, got, want)
		}
		if kept := utf8.RuneCountInString(got) - utf8.RuneCountInString(marker); kept != limit {
			t.Errorf("limit %d: kept %d runes", limit, kept)
		}
	}
}

func TestTruncate_MultibyteBoundaries(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("日本語", 10)
	got, truncated := Truncate(content, 5)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated output is not valid UTF-8: %q", got)
	}
	if !strings.HasPrefix(got, "日本語") || !strings.HasSuffix(got, "本語") {
		t.Errorf("unexpected head/tail: %q", got)
	}
}

func TestTruncate_Idempotent(t *testing.T) {
	t.Parallel()

	once, _ := Truncate(strings.Repeat("z", 50), 500)
	twice, truncated := Truncate(once, 500)
	if truncated || once != twice {
		t.Error("truncating an already-bounded string must not change it")
	}
}

type limitedSubject struct {
	schema string
	limit  int
}

func (s limitedSubject) Schema() json.RawMessage     { return json.RawMessage(s.schema) }
func (s limitedSubject) DefaultOutputLimitChars() int { return s.limit }

type plainSubject struct{ schema string }

func (s plainSubject) Schema() json.RawMessage { return json.RawMessage(s.schema) }

func TestResolveLimit(t *testing.T) {
	t.Parallel()

	withLimit := `{"type":"object","properties":{"limit":{"type":"integer"}}}`
	without := `{"type":"object","properties":{"path":{"type":"string"}}}`

	tests := []struct {
		name    string
		subject Subject
		args    string
		want    int
	}{
		{"fallback", plainSubject{without}, `{}`, 8000},
		{"limit arg ignored without schema property", plainSubject{without}, `{"limit":10}`, 8000},
		{"limit arg honored", plainSubject{withLimit}, `{"limit":10}`, 10},
		{"limit arg beats tool default", limitedSubject{withLimit, 500}, `{"limit":10}`, 10},
		{"tool default", limitedSubject{without, 500}, `{"limit":10}`, 500},
		{"tool default when arg missing", limitedSubject{withLimit, 500}, `{}`, 500},
		{"unparsable args", plainSubject{withLimit}, `not json`, 8000},
		{"fraction rounds up", plainSubject{withLimit}, `{"limit":0.5}`, 1},
		{"fraction above one", plainSubject{withLimit}, `{"limit":10.2}`, 11},
		{"huge limit clamped", plainSubject{withLimit}, `{"limit":1e300}`, math.MaxInt32},
		{"huge negative clamped", plainSubject{withLimit}, `{"limit":-1e300}`, math.MinInt32},
		{"negative disables", plainSubject{withLimit}, `{"limit":-1.5}`, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ResolveLimit(tt.subject, tt.subject.Schema(), json.RawMessage(tt.args), DefaultLimit)
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
