// Package watcher turns filesystem activity in the match directory into
// cache invalidations. Events are debounced: a burst of writes collapses
// into a single invalidation once the directory has been quiet for the
// configured window.
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"snipd/internal/ledger"
	"snipd/internal/logging"
)

// DefaultDebounce is the quiet window before a burst of events flushes.
const DefaultDebounce = 500 * time.Millisecond

// Invalidator marks a cached view stale. Implemented by cache.Cache.
type Invalidator interface {
	Invalidate()
}

// Config wires a Watcher.
type Config struct {
	// Dir is the match directory to watch. Required.
	Dir string

	// Debounce is the quiet window. Defaults to DefaultDebounce.
	Debounce time.Duration

	// Extensions filters which files count. Defaults to
	// ledger.DefaultExtensions.
	Extensions []string

	// Logger receives operational logging. Defaults to a NopLogger.
	Logger logging.Logger

	// OnChange, when set, runs after every flush, after the invalidation.
	OnChange func()
}

// Watcher watches one match directory. Start it once; Stop guarantees
// that no invalidation fires after it returns.
type Watcher struct {
	dir        string
	debounce   time.Duration
	extensions []string
	log        logging.Logger
	onChange   func()
	target     Invalidator

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a stopped Watcher targeting inv.
func New(cfg Config, inv Invalidator) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	if len(cfg.Extensions) == 0 {
		cfg.Extensions = ledger.DefaultExtensions
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	return &Watcher{
		dir:        cfg.Dir,
		debounce:   cfg.Debounce,
		extensions: cfg.Extensions,
		log:        cfg.Logger,
		onChange:   cfg.OnChange,
		target:     inv,
		done:       make(chan struct{}),
	}
}

// Start registers the directory with the OS watcher and spawns the event
// loop. The directory must exist.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()

		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.fsw = fsw
	w.wg.Add(1)

	go w.run(fsw.Events, fsw.Errors)

	w.log.Info("watching match directory", "dir", w.dir, "debounce", w.debounce)

	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit. No
// invalidation fires after Stop returns. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)

		if w.fsw != nil {
			_ = w.fsw.Close()
		}
	})

	w.wg.Wait()
}

// run is the debounce loop: Idle until a relevant event arms the timer,
// further events reset it, and the flush fires only after a full quiet
// window. Exposed to tests through injected channels.
func (w *Watcher) run(events <-chan fsnotify.Event, errs <-chan error) {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-events:
			if !ok {
				return
			}

			if !w.relevant(ev) {
				continue
			}

			w.log.Debug("match directory changed", "path", ev.Name, "op", ev.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C

				continue
			}

			if !timer.Stop() {
				// Drain a fire that raced the reset.
				select {
				case <-fire:
				default:
				}
			}

			timer.Reset(w.debounce)

		case <-fire:
			timer = nil
			fire = nil

			w.flush()

		case err, ok := <-errs:
			if !ok {
				return
			}

			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) flush() {
	w.target.Invalidate()
	w.log.Debug("cache invalidated after quiet window")

	if w.onChange != nil {
		w.onChange()
	}
}

// relevant filters out lock traffic, hidden files, and files whose
// extension is not a match extension. Directory-level events (the watch
// target itself) pass through.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}

	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}

	if strings.Contains(ev.Name, string(filepath.Separator)+".locks"+string(filepath.Separator)) {
		return false
	}

	if ev.Name == w.dir {
		return true
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range w.extensions {
		if ext == want {
			return true
		}
	}

	return false
}
