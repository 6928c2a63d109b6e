package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ResolvePaths makes every relative file path in c relative to base and
// expands a leading "~/".
func (c *Config) ResolvePaths(base string) {
	for _, p := range []*string{
		&c.Results.CacheDir,
		&c.Approval.DecisionsDB,
		&c.Scripts.Dir,
		&c.Audit.Path,
	} {
		*p = resolvePath(base, *p)
	}
}

func resolvePath(base, p string) string {
	if p == "" {
		return p
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// GroupNames returns the configured group names in sorted order.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
