package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
)

type formattingSubject struct{ plainSubject }

func (formattingSubject) FormatForLLM(data any, _ json.RawMessage) (string, error) {
	return "formatted: " + data.(string), nil
}

type failingFormatter struct{ plainSubject }

func (failingFormatter) FormatForLLM(any, json.RawMessage) (string, error) {
	return "", errors.New("bad data")
}

type selfBounded struct{ plainSubject }

func (selfBounded) SkipExternalTruncate() bool { return true }
func (selfBounded) SkipCacheResult() bool      { return true }

type customTruncator struct{ plainSubject }

func (customTruncator) TruncateForLLM(string, json.RawMessage) (string, bool) {
	return "short", true
}

func TestFormat(t *testing.T) {
	t.Parallel()

	got, err := Format(plainSubject{}, "hi", nil)
	if err != nil || got != `"hi"` {
		t.Errorf("string datum: got %q, %v", got, err)
	}
	got, err = Format(plainSubject{}, map[string]any{"b": 1, "a": true}, nil)
	if err != nil || got != `{"a":true,"b":1}` {
		t.Errorf("map datum: got %q, %v", got, err)
	}
	got, err = Format(plainSubject{}, "a && b <c>", nil)
	if err != nil || got != `"a && b <c>"` {
		t.Errorf("html characters: got %q, %v", got, err)
	}
	got, err = Format(plainSubject{}, map[string]any{"cmd": "x > y"}, nil)
	if err != nil || got != `{"cmd":"x > y"}` {
		t.Errorf("html characters in map: got %q, %v", got, err)
	}
	got, err = Format(formattingSubject{}, "x", nil)
	if err != nil || got != "formatted: x" {
		t.Errorf("formatter: got %q, %v", got, err)
	}
	if _, err := Format(failingFormatter{}, "x", nil); !errors.Is(err, ErrFormat) {
		t.Errorf("failing formatter: expected ErrFormat, got %v", err)
	}
	if _, err := Format(plainSubject{}, make(chan int), nil); !errors.Is(err, ErrFormat) {
		t.Errorf("unencodable datum: expected ErrFormat, got %v", err)
	}
}

func TestPipelineProcess_TruncatesAndCaches(t *testing.T) {
	t.Parallel()

	cache, err := NewCache(CacheConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	p := New(Config{DefaultLimit: 10, Cache: cache})

	long := strings.Repeat("a", 40)
	out, err := p.Process(context.Background(), "cat", plainSubject{}, long, json.RawMessage(`{"path":"x"}`))
	cache.Wait()
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.IsTruncated {
		t.Error("expected truncation")
	}
	if out.FormattedText != `"`+long+`"` {
		t.Errorf("formatted text should be untruncated, got %q", out.FormattedText)
	}
	if out.CacheFile == "" {
		t.Fatal("expected a cache file")
	}
	entry, err := cache.Read(out.CacheFile)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if entry.Text != out.FormattedText || entry.Tool != "cat" || string(entry.Arguments) != `{"path":"x"}` {
		t.Errorf("cache entry: %+v", entry)
	}
}

func TestPipelineProcess_Hooks(t *testing.T) {
	t.Parallel()

	cache, err := NewCache(CacheConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	p := New(Config{DefaultLimit: 3, Cache: cache})
	ctx := context.Background()

	out, err := p.Process(ctx, "bounded", selfBounded{}, "long output", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.IsTruncated || out.FinalText != `"long output"` || out.CacheFile != "" {
		t.Errorf("self-bounded: %+v", out)
	}

	out, err = p.Process(ctx, "custom", customTruncator{}, "long output", nil)
	cache.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if !out.IsTruncated || out.FinalText != "short" {
		t.Errorf("custom truncator: %+v", out)
	}
}

func TestPipelineProcess_Unbounded(t *testing.T) {
	t.Parallel()

	p := New(Config{DefaultLimit: -1})
	long := strings.Repeat("b", 20000)
	out, err := p.Process(context.Background(), "t", plainSubject{}, long, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.IsTruncated || out.CacheFile != "" {
		t.Errorf("unexpected %+v", out.IsTruncated)
	}
	if p.Limit() != -1 {
		t.Errorf("Limit: got %d", p.Limit())
	}
	if New(Config{}).Limit() != DefaultLimit {
		t.Error("zero limit should mean DefaultLimit")
	}
}

func TestPipelineProcess_FormatError(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	if _, err := p.Process(context.Background(), "t", failingFormatter{}, "x", nil); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestPipelineProcess_CacheWriteFailureIsSoft(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache, err := NewCache(CacheConfig{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	p := New(Config{Cache: cache})
	out, err := p.Process(context.Background(), "t", plainSubject{}, "x", nil)
	if err != nil {
		t.Fatalf("cache failure should not fail the call: %v", err)
	}
	if out.CacheFile != "" || out.FinalText != `"x"` {
		t.Errorf("unexpected %+v", out)
	}
}
