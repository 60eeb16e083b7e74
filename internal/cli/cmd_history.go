package cli

import (
	"context"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

func cmdHistory(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd history [--limit=N] [--prune=N]")
		o.Println()
		o.Println("Shows recorded mutations, newest first.")

		return nil
	}

	if a.history == nil {
		return fmt.Errorf("history is disabled (no history_db configured)")
	}

	flagSet := flag.NewFlagSet("history", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	limit := flagSet.Int("limit", 20, "Maximum rows to show")
	prune := flagSet.Int("prune", 0, "Delete all but the newest N rows first")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.Changed("prune") {
		deleted, err := a.history.Prune(ctx, *prune)
		if err != nil {
			return err
		}

		o.Printf("pruned %d rows\n", deleted)
	}

	entries, err := a.history.List(ctx, *limit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		o.Println("no history")

		return nil
	}

	for _, e := range entries {
		detail := e.Detail
		if detail == "" {
			detail = "-"
		}

		o.Printf("%s\t%s\t%s\t%s\t%s\n", e.Time.Format("2006-01-02 15:04:05"), e.Op, e.Trigger, e.File, detail)
	}

	return nil
}
