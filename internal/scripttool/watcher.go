package scripttool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flemzord/toolgate/internal/tool"
)

// DefaultDebounce is how long the watcher waits for a burst of file
// events to settle before reloading.
const DefaultDebounce = 300 * time.Millisecond

// Registrar is the part of the registry the watcher updates.
type Registrar interface {
	RegisterGroup(g tool.Group) error
	UnregisterGroup(name string)
}

// Watcher keeps the registry in sync with a script directory.
type Watcher struct {
	loader   *Loader
	runner   *Runner
	reg      Registrar
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	groups map[string]struct{} // groups registered by the last sync
	timer  *time.Timer

	// OnReload, when set, is called after every reload with the watcher
	// lock held.
	OnReload func(modules []ParsedModule, err error)
}

// NewWatcher creates a Watcher. A debounce of zero uses DefaultDebounce.
func NewWatcher(loader *Loader, runner *Runner, reg Registrar, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		loader:   loader,
		runner:   runner,
		reg:      reg,
		debounce: debounce,
		logger:   logger,
		groups:   make(map[string]struct{}),
	}
}

// Reload loads the directory and registers its groups. Groups that
// disappeared since the previous reload are unregistered. Reloading a
// group keeps its enabled flag.
func (w *Watcher) Reload(ctx context.Context) ([]ParsedModule, error) {
	modules, loadErr := w.loader.Load(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		g := m.Group(w.runner)
		if len(g.Tools) == 0 {
			continue
		}
		if err := w.reg.RegisterGroup(g); err != nil {
			w.logger.Warn("scripttool: register group failed", "group", g.Name, "error", err)
			continue
		}
		current[g.Name] = struct{}{}
	}
	for name := range w.groups {
		if _, ok := current[name]; !ok {
			w.reg.UnregisterGroup(name)
			w.logger.Info("scripttool: removed group", "group", name)
		}
	}
	w.groups = current

	w.logger.Info("scripttool: scripts loaded", "dir", w.loader.Dir(), "groups", len(current))
	if w.OnReload != nil {
		w.OnReload(modules, loadErr)
	}
	return modules, loadErr
}

// Run reloads once, then watches the directory until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.loader.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", w.loader.Dir(), err)
	}
	if _, err := w.Reload(ctx); err != nil {
		w.logger.Warn("scripttool: initial load incomplete", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.loader.Handles(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.schedule(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("scripttool: watcher error", "error", err)
		}
	}
}

// schedule debounces reloads: a burst of events yields one reload.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.Reload(ctx); err != nil {
			w.logger.Warn("scripttool: reload incomplete", "error", err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
