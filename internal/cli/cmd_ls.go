package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"snipd/internal/cache"
	"snipd/internal/snippet"
)

const defaultLimit = 100

func cmdLs(_ context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		printLsHelp(o)

		return nil
	}

	flagSet := flag.NewFlagSet("ls", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	file := flagSet.String("file", "", "Only snippets from this match file")
	enabled := flagSet.Bool("enabled", false, "Only enabled snippets")
	disabled := flagSet.Bool("disabled", false, "Only disabled snippets")
	limit := flagSet.Int("limit", defaultLimit, "Maximum snippets to show")
	offset := flagSet.Int("offset", 0, "Skip first N snippets")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	q := cache.Query{File: *file, Limit: *limit, Offset: *offset}

	if *enabled && *disabled {
		return fmt.Errorf("--enabled and --disabled are mutually exclusive")
	}

	if *enabled {
		q.Enabled = boolPtr(true)
	}

	if *disabled {
		q.Enabled = boolPtr(false)
	}

	entries, err := a.store.Search(q)
	if err != nil {
		return err
	}

	a.reportWarnings(o)
	printEntries(o, entries)

	return nil
}

func cmdSearch(_ context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd search <text> [--file=X] [--limit=N] [--offset=N]")
		o.Println()
		o.Println("Case-insensitive search over triggers, labels, and replacement text.")

		return nil
	}

	flagSet := flag.NewFlagSet("search", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	file := flagSet.String("file", "", "Only snippets from this match file")
	limit := flagSet.Int("limit", defaultLimit, "Maximum snippets to show")
	offset := flagSet.Int("offset", 0, "Skip first N snippets")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: snipd search <text>")
	}

	entries, err := a.store.Search(cache.Query{
		Text:   rest[0],
		File:   *file,
		Limit:  *limit,
		Offset: *offset,
	})
	if err != nil {
		return err
	}

	a.reportWarnings(o)
	printEntries(o, entries)

	return nil
}

func cmdShow(_ context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd show <trigger>")

		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: snipd show <trigger>")
	}

	entry, err := a.store.Get(args[0])
	if err != nil {
		return err
	}

	printSnippet(o, entry)

	dupes, err := a.store.DuplicateTriggers()
	if err != nil {
		return err
	}

	if others := dupes[entry.Snippet.Trigger]; len(others) > 1 {
		o.Warn("trigger defined in multiple files", "the first definition wins; deduplicate "+entry.Snippet.Trigger)
	}

	return nil
}

// printEntries renders one tab-separated line per snippet.
func printEntries(o *IO, entries []cache.Entry) {
	if len(entries) == 0 {
		o.Println("no snippets")

		return
	}

	for _, entry := range entries {
		flags := entryFlags(&entry.Snippet)
		o.Printf("%s\t%s\t%s\t%s\n", entry.Snippet.Trigger, filepath.Base(entry.File), flags, firstLine(entry.Snippet.Replace))
	}
}

func printSnippet(o *IO, entry cache.Entry) {
	s := &entry.Snippet

	o.Println("trigger: ", s.Trigger)
	o.Println("file:    ", filepath.Base(entry.File))
	o.Println("position:", entry.Position)
	o.Println("enabled: ", s.Enabled)

	if s.Label != "" {
		o.Println("label:   ", s.Label)
	}

	if s.Backend != snippet.BackendDefault {
		o.Println("backend: ", s.Backend)
	}

	if s.Uppercase != snippet.UppercaseNone {
		o.Println("case:    ", s.Uppercase)
	}

	if s.LeftWord || s.RightWord {
		o.Println("word:    ", wordFlags(s))
	}

	if s.DelayMS > 0 {
		o.Println("delay:   ", s.DelayMS, "ms")
	}

	if s.ImagePath != "" {
		o.Println("image:   ", s.ImagePath)
	}

	for _, v := range s.Vars {
		o.Println("var:     ", v.Name, "("+v.Kind+")")
	}

	for _, f := range s.Fields {
		o.Println("field:   ", f.Name, "("+f.Type+")")
	}

	o.Println("replace: |")

	for _, line := range strings.Split(s.Replace, "\n") {
		o.Println("  " + line)
	}
}

func entryFlags(s *snippet.Snippet) string {
	var flags []string

	if !s.Enabled {
		flags = append(flags, "off")
	}

	if s.HasVars() {
		flags = append(flags, "vars")
	}

	if s.HasForm() {
		flags = append(flags, "form")
	}

	if len(flags) == 0 {
		return "-"
	}

	return strings.Join(flags, ",")
}

func wordFlags(s *snippet.Snippet) string {
	switch {
	case s.LeftWord && s.RightWord:
		return "left+right"
	case s.LeftWord:
		return "left"
	default:
		return "right"
	}
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	if len(line) > 60 {
		return line[:57] + "..."
	}

	return line
}

func boolPtr(b bool) *bool { return &b }

func printLsHelp(o *IO) {
	o.Println("Usage: snipd ls [--file=X] [--enabled|--disabled] [--limit=N] [--offset=N]")
	o.Println()
	o.Println("Lists snippets in match-file order, one tab-separated line each:")
	o.Println("trigger, file, flags, first line of the replacement.")
}
