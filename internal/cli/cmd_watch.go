package cli

import (
	"context"
	"time"

	"snipd/internal/watcher"
)

// cmdWatch keeps the cached view fresh and the daemon reloaded until the
// first interrupt.
func cmdWatch(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd watch")
		o.Println()
		o.Println("Watches the match directory, refreshing the snippet view and")
		o.Println("reloading the runtime after external edits. Runs until interrupted.")

		return nil
	}

	if err := a.store.EnsureDefaultFile(); err != nil {
		return err
	}

	w := watcher.New(watcher.Config{
		Dir:        a.cfg.MatchDir,
		Debounce:   time.Duration(a.cfg.DebounceMS) * time.Millisecond,
		Extensions: a.cfg.Extensions,
		Logger:     a.log,
		OnChange: func() {
			if err := a.runtime.Reload(context.Background()); err != nil {
				a.log.Warn("runtime reload failed", "error", err)
			}
		},
	}, a.store.Cache())

	if err := w.Start(); err != nil {
		return err
	}

	o.Println("watching", a.cfg.MatchDir, "(ctrl-c to stop)")

	<-ctx.Done()
	w.Stop()

	o.Println("stopped")

	return nil
}
