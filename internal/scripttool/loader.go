// Package scripttool turns a directory of Python or PowerShell scripts into
// registry tool groups. Each script is described by a generated
// <script>.tool.json sidecar; a sidecar older than its script is
// regenerated by running the configured parser process.
package scripttool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ParsedModule is one script with its sidecar.
type ParsedModule struct {
	// Path is the absolute script path.
	Path string

	Sidecar Sidecar

	// Reparsed is true when the parser ran during this load.
	Reparsed bool
}

// GroupName returns the sidecar's group, or the script's base name
// without extension.
func (m ParsedModule) GroupName() string {
	if m.Sidecar.Group != "" {
		return m.Sidecar.Group
	}
	base := filepath.Base(m.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Dir       string
	Languages map[string]Language
	Logger    *slog.Logger
}

// Loader scans a script directory.
type Loader struct {
	dir       string
	languages map[string]Language
	runner    *Runner
	logger    *slog.Logger
}

// NewLoader creates a Loader. The runner also executes the parser
// processes, so they get the same sanitized environment and timeout.
func NewLoader(cfg LoaderConfig, runner *Runner) *Loader {
	if cfg.Languages == nil {
		cfg.Languages = DefaultLanguages()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loader{
		dir:       cfg.Dir,
		languages: cfg.Languages,
		runner:    runner,
		logger:    cfg.Logger,
	}
}

// Dir returns the scanned directory.
func (l *Loader) Dir() string { return l.dir }

// Handles reports whether path is a script the loader would pick up.
func (l *Loader) Handles(path string) bool {
	if IsSidecar(path) {
		return false
	}
	_, ok := l.languages[filepath.Ext(path)]
	return ok
}

// Load returns every module in the directory, sorted by path. A module
// that fails to load is skipped and its error joined into the returned
// error; the others are still returned. A missing directory yields no
// modules and no error.
func (l *Loader) Load(ctx context.Context) ([]ParsedModule, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("scripttool: script directory does not exist", "dir", l.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read script directory: %w", err)
	}

	var scripts []string
	for _, e := range entries {
		if e.IsDir() || !l.Handles(e.Name()) {
			continue
		}
		scripts = append(scripts, filepath.Join(l.dir, e.Name()))
	}
	slices.Sort(scripts)

	var (
		modules []ParsedModule
		errs    []error
	)
	for _, path := range scripts {
		if err := ctx.Err(); err != nil {
			return modules, err
		}
		m, err := l.LoadScript(ctx, path)
		if err != nil {
			l.logger.Warn("scripttool: skipping script", "script", filepath.Base(path), "error", err)
			errs = append(errs, err)
			continue
		}
		modules = append(modules, m)
	}
	return modules, errors.Join(errs...)
}

// LoadScript loads one script, reparsing it when its sidecar is missing or
// its mtime is later than the recorded one.
func (l *Loader) LoadScript(ctx context.Context, path string) (ParsedModule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ParsedModule{}, err
	}
	mtime := info.ModTime().UnixMilli()
	sidecarPath := SidecarPath(path)

	sc, err := ReadSidecar(sidecarPath)
	switch {
	case err == nil && mtime <= sc.ScriptMTime:
		return ParsedModule{Path: path, Sidecar: sc}, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		l.logger.Warn("scripttool: unreadable sidecar, reparsing", "script", filepath.Base(path), "error", err)
	}

	sc, err = l.parse(ctx, path)
	if err != nil {
		return ParsedModule{}, err
	}
	sc.Script = filepath.Base(path)
	sc.ScriptMTime = mtime
	if err := WriteSidecar(sidecarPath, sc); err != nil {
		return ParsedModule{}, err
	}
	l.logger.Info("scripttool: regenerated sidecar", "script", sc.Script, "tools", len(sc.Tools))
	return ParsedModule{Path: path, Sidecar: sc, Reparsed: true}, nil
}

// parse runs the parser process for path.
func (l *Loader) parse(ctx context.Context, path string) (Sidecar, error) {
	lang := l.languages[filepath.Ext(path)]
	if len(lang.Parser) == 0 {
		return Sidecar{}, fmt.Errorf("%w: %s (no parser configured for %s)",
			ErrStaleSidecar, filepath.Base(path), filepath.Ext(path))
	}
	argv := append(slices.Clone(lang.Parser), path)
	out, err := l.runner.exec(ctx, argv, nil)
	if err != nil {
		return Sidecar{}, fmt.Errorf("%w: %w", ErrParser, err)
	}

	var sc Sidecar
	if err := json.Unmarshal(bytes.TrimSpace(out), &sc); err != nil {
		return Sidecar{}, fmt.Errorf("%w: %s: invalid output: %w", ErrParser, filepath.Base(path), err)
	}
	if err := sc.validate(); err != nil {
		return Sidecar{}, fmt.Errorf("%w: %s: %w", ErrParser, filepath.Base(path), err)
	}
	return sc, nil
}
