package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/flemzord/toolgate/internal/reload"
)

// background starts the script watcher, the cron scheduler and the config
// poller. The returned function stops them and waits.
func (a *App) background(ctx context.Context) (stop func(), err error) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	if a.Scripts != nil && a.Config.Scripts.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Scripts.Run(ctx); err != nil {
				a.Logger.Error("scripts: watcher stopped", "error", err)
			}
		}()
	}

	if a.Reload != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reload.NewPoller(a.ConfigPath, 0).Run(ctx, func() {
				a.applyReload(ctx)
			})
		}()
	}

	if err := a.Scheduler.Start(); err != nil {
		cancel()
		wg.Wait()
		return nil, err
	}

	return func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := a.Scheduler.Stop(stopCtx); err != nil {
			a.Logger.Warn("cron: stop timed out", "error", err)
		}
		wg.Wait()
	}, nil
}

func (a *App) applyReload(ctx context.Context) {
	if a.Reload == nil {
		return
	}
	if err := a.Reload.Reload(ctx); err != nil {
		a.Logger.Error("reload failed", "error", err)
		return
	}
	a.syncMCP()
}

// Serve runs the HTTP gateway and the background workers until a shutdown
// signal arrives or ctx ends. SIGHUP reloads the configuration file.
func (a *App) Serve(ctx context.Context) error {
	gw := a.Gateway()
	if err := gw.Validate(); err != nil {
		return err
	}

	stop, err := a.background(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return err
	}

	a.waitForShutdown(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// ServeMCP serves the MCP protocol on in and out until in closes, a
// shutdown signal arrives or ctx ends.
func (a *App) ServeMCP(ctx context.Context, in io.Reader, out io.Writer) error {
	srv := a.MCP()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop, err := a.background(ctx)
	if err != nil {
		return err
	}
	defer stop()

	go func() {
		a.waitForShutdown(ctx)
		cancel()
	}()

	err = srv.ServeStdio(ctx, in, out)
	if ctx.Err() != nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// waitForShutdown blocks until SIGINT, SIGTERM or ctx. SIGHUP triggers a
// configuration reload and keeps waiting.
func (a *App) waitForShutdown(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				a.Logger.Info("SIGHUP received, reloading configuration")
				a.applyReload(ctx)
				continue
			}
			a.Logger.Info("shutdown signal received", "signal", sig.String())
			return
		}
	}
}
