package cli

import (
	"fmt"
	"log/slog"
	"os"

	"snipd/internal/backup"
	"snipd/internal/config"
	"snipd/internal/history"
	"snipd/internal/logging"
	"snipd/internal/runtime"
	"snipd/internal/store"
)

// app bundles the wired components every subcommand works against.
type app struct {
	cfg     config.Config
	sources config.Sources
	log     logging.Logger
	store   *store.Store
	backups *backup.Manager
	runtime *runtime.Controller
	history *history.Log
	logFile *os.File
	env     map[string]string
}

// newApp wires the application from resolved configuration. The history
// database is opened eagerly so mutations are recorded from the first
// command on; a failure to open it degrades to a warning, not a dead CLI.
func newApp(cfg config.Config, sources config.Sources, env map[string]string, o *IO) (*app, error) {
	a := &app{cfg: cfg, sources: sources, env: env}

	if cfg.LogDir != "" {
		log, file, err := logging.NewFileLogger(cfg.LogDir, slog.LevelInfo)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}

		a.log = log
		a.logFile = file
	} else {
		a.log = logging.NewNopLogger()
	}

	a.runtime = runtime.NewController(runtime.Options{Bin: cfg.RuntimeBin, Logger: a.log})
	a.backups = backup.NewManager(cfg.BackupDir, a.log, nil)

	if cfg.HistoryDB != "" {
		log, err := history.Open(cfg.HistoryDB, nil)
		if err != nil {
			o.Warn("history database unavailable", "mutations will not be recorded: "+err.Error())
		} else {
			a.history = log
		}
	}

	opts := store.Options{
		Dir:         cfg.MatchDir,
		DefaultFile: cfg.DefaultFile,
		Extensions:  cfg.Extensions,
		Logger:      a.log,
		Reloader:    a.runtime,
	}
	if a.history != nil {
		opts.History = a.history
	}

	a.store = store.New(opts)

	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		_ = a.history.Close()
	}

	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// reportWarnings surfaces per-file read problems of the current view.
func (a *app) reportWarnings(o *IO) {
	warnings, err := a.store.Warnings()
	if err != nil {
		return
	}

	for _, w := range warnings {
		o.Warn("unreadable match file "+w.Path, "fix or remove it; its snippets are skipped ("+w.Err.Error()+")")
	}
}
