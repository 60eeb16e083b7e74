package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"snipd/internal/backup"
)

func cmdBackup(_ context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd backup [create [--label=X] | list]")
		o.Println()
		o.Println("Without arguments, creates a backup of the match directory.")

		return nil
	}

	sub := "create"
	if len(args) > 0 && args[0] == "list" {
		sub = "list"
		args = args[1:]
	} else if len(args) > 0 && args[0] == "create" {
		args = args[1:]
	}

	if sub == "list" {
		return listBackups(o, a)
	}

	flagSet := flag.NewFlagSet("backup", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	label := flagSet.String("label", "", "Label for the backup folder")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	// Hold the store's directory lock for the whole copy so no mutation
	// lands mid-snapshot.
	var b backup.Backup

	err := a.store.WithLock(func() error {
		var err error
		b, err = a.backups.Create(a.cfg.MatchDir, *label)

		return err
	})
	if err != nil {
		return err
	}

	o.Printf("backup %s created (%d files, %d bytes)\n", filepath.Base(b.Path), b.Files, b.Size)
	o.Println("id:", b.ID)

	return nil
}

func listBackups(o *IO, a *app) error {
	backups, err := a.backups.List()
	if err != nil {
		return err
	}

	if len(backups) == 0 {
		o.Println("no backups")

		return nil
	}

	for _, b := range backups {
		id := b.ID
		if id == "" {
			id = "-"
		}

		o.Printf("%s\t%s\t%s\t%d files\n", b.Timestamp.Format("2006-01-02 15:04:05"), filepath.Base(b.Path), id, b.Files)
	}

	return nil
}

func cmdRestore(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd restore <id-or-name> [--overwrite]")
		o.Println()
		o.Println("Restores a backup into the match directory. Refuses to touch a")
		o.Println("non-empty directory unless --overwrite is given.")

		return nil
	}

	flagSet := flag.NewFlagSet("restore", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	overwrite := flagSet.Bool("overwrite", false, "Replace existing match files")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: snipd restore <id-or-name>")
	}

	err := a.store.WithLock(func() error {
		return a.backups.Restore(rest[0], a.cfg.MatchDir, *overwrite)
	})
	if err != nil {
		return err
	}

	// The restored files bypass the store, so the view and the daemon
	// both need a nudge.
	a.store.Cache().Invalidate()

	if err := a.runtime.Reload(ctx); err != nil {
		o.Warn("runtime reload failed", err.Error())
	}

	if a.history != nil {
		if err := a.history.Record(ctx, "restore", "", rest[0], "into "+a.cfg.MatchDir); err != nil {
			o.Warn("recording history", err.Error())
		}
	}

	o.Println("restored", rest[0])

	return nil
}
