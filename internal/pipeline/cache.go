package pipeline

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultKeep is the number of cache files kept by Prune.
const DefaultKeep = 100

const (
	cacheExt       = ".log"
	headerTool     = "tool: "
	headerArgs     = "arguments: "
	headerSplitter = "---"
)

// CacheConfig configures a result cache.
type CacheConfig struct {
	// Dir is the cache directory. It is created if missing.
	Dir string

	// Keep is how many files survive a prune. Zero or less means DefaultKeep.
	Keep int

	Logger *slog.Logger
}

// Cache stores the untruncated formatted output of tool calls on disk.
// Writes trigger a background prune; concurrent triggers are coalesced.
// Pruning does not coordinate with writers in other processes.
type Cache struct {
	dir    string
	keep   int
	logger *slog.Logger
	now    func() time.Time

	running atomic.Bool
	pending atomic.Bool
	wg      sync.WaitGroup
}

// Entry is a parsed cache file.
type Entry struct {
	Path      string
	Tool      string
	Arguments json.RawMessage
	Text      string
	ModTime   time.Time
}

// NewCache opens (creating if needed) a cache directory.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: empty cache directory", ErrCacheFile)
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	keep := cfg.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: cfg.Dir, keep: keep, logger: logger, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Keep returns the prune threshold.
func (c *Cache) Keep() int { return c.keep }

// Write stores one call and returns the file path.
func (c *Cache) Write(toolName string, args json.RawMessage, text string) (string, error) {
	name := fmt.Sprintf("%d-%s-%s%s", c.now().UnixNano(), safeName(toolName), uuid.NewString(), cacheExt)
	path := filepath.Join(c.dir, name)

	var b strings.Builder
	b.WriteString(headerTool + toolName + "\n")
	b.WriteString(headerArgs + CompactArgs(args) + "\n")
	b.WriteString(headerSplitter + "\n")
	b.WriteString(text)

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}
	c.schedulePrune()
	return path, nil
}

// Read loads a cache file by name or path. Paths outside the cache
// directory are refused.
func (c *Cache) Read(nameOrPath string) (Entry, error) {
	base := filepath.Base(nameOrPath)
	if base != nameOrPath && filepath.Clean(filepath.Dir(nameOrPath)) != filepath.Clean(c.dir) {
		return Entry{}, fmt.Errorf("%w: %s is outside %s", ErrCacheFile, nameOrPath, c.dir)
	}
	if !strings.HasSuffix(base, cacheExt) {
		return Entry{}, fmt.Errorf("%w: %s", ErrCacheFile, base)
	}
	path := filepath.Join(c.dir, base)

	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("read cache file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("stat cache file: %w", err)
	}
	entry := Entry{Path: path, ModTime: info.ModTime()}

	head, text, ok := strings.Cut(string(data), "\n"+headerSplitter+"\n")
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s has no header", ErrCacheFile, base)
	}
	for _, line := range strings.Split(head, "\n") {
		switch {
		case strings.HasPrefix(line, headerTool):
			entry.Tool = strings.TrimPrefix(line, headerTool)
		case strings.HasPrefix(line, headerArgs):
			entry.Arguments = json.RawMessage(strings.TrimPrefix(line, headerArgs))
		}
	}
	entry.Text = text
	return entry, nil
}

// List returns cache files, newest first.
func (c *Cache) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), cacheExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(c.dir, de.Name()),
			ModTime: info.ModTime(),
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if n := b.ModTime.Compare(a.ModTime); n != 0 {
			return n
		}
		return cmp.Compare(b.Path, a.Path)
	})
	return entries, nil
}

// Prune removes all but the newest Keep files by modification time and
// returns how many were removed.
func (c *Cache) Prune() (int, error) {
	entries, err := c.List()
	if err != nil {
		return 0, err
	}
	if len(entries) <= c.keep {
		return 0, nil
	}
	removed := 0
	for _, e := range entries[c.keep:] {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("prune cache: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Wait blocks until background prunes have finished.
func (c *Cache) Wait() { c.wg.Wait() }

func (c *Cache) schedulePrune() {
	c.pending.Store(true)
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for c.pending.Swap(false) {
			if n, err := c.Prune(); err != nil {
				c.logger.Warn("pipeline: cache prune failed", "dir", c.dir, "error", err)
			} else if n > 0 {
				c.logger.Debug("pipeline: cache pruned", "dir", c.dir, "removed", n)
			}
		}
		c.running.Store(false)
		if c.pending.Load() {
			c.schedulePrune()
		}
	}()
}

// CompactArgs renders arguments on one line.
func CompactArgs(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	var b bytes.Buffer
	if err := json.Compact(&b, args); err != nil {
		return strings.Join(strings.Fields(string(args)), " ")
	}
	return b.String()
}

func safeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if mapped == "" {
		return "tool"
	}
	return mapped
}
