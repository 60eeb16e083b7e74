package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"snipd/internal/snippet"
	"snipd/internal/store"
)

func cmdImport(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd import <pack-file> [--overwrite] [--file=X]")
		o.Println()
		o.Println("Imports a YAML or JSON snippet pack. Existing triggers are skipped")
		o.Println("unless --overwrite replaces them in place.")

		return nil
	}

	flagSet := flag.NewFlagSet("import", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	overwrite := flagSet.Bool("overwrite", false, "Replace snippets whose trigger already exists")
	file := flagSet.String("file", "", "Target match file for new snippets")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: snipd import <pack-file>")
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		return fmt.Errorf("reading pack: %w", err)
	}

	snippets, err := snippet.DecodePack(filepath.Base(rest[0]), data)
	if err != nil {
		return err
	}

	records := make([]store.PackRecord, 0, len(snippets))
	for _, snip := range snippets {
		records = append(records, store.PackRecord{Snippet: snip, File: *file})
	}

	mode := store.ImportSkip
	if *overwrite {
		mode = store.ImportOverwrite
	}

	result, err := a.store.ImportPack(ctx, records, mode)
	if err != nil {
		return err
	}

	for _, impErr := range result.Errors {
		o.Warn("record "+impErr.Trigger+" not imported", impErr.Err.Error())
	}

	o.Printf("imported %d created, %d replaced, %d skipped\n", result.Created, result.Replaced, result.Skipped)

	return nil
}

func cmdExport(_ context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd export [trigger...] [--format=yaml|json] [-o <file>]")
		o.Println()
		o.Println("Exports the named snippets (or all of them) as a pack.")

		return nil
	}

	flagSet := flag.NewFlagSet("export", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	format := flagSet.String("format", "yaml", "Pack format: yaml or json")
	outPath := flagSet.StringP("output", "o", "", "Write the pack to a file instead of stdout")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	var packFormat store.ExportFormat

	switch strings.ToLower(*format) {
	case "yaml", "yml":
		packFormat = store.FormatYAML
	case "json":
		packFormat = store.FormatJSON
	default:
		return fmt.Errorf("unknown format: %s", *format)
	}

	data, err := a.store.Export(flagSet.Args(), packFormat)
	if err != nil {
		return err
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, data, 0o644); err != nil {
			return fmt.Errorf("writing pack: %w", err)
		}

		o.Println("exported to", *outPath)

		return nil
	}

	o.Printf("%s", data)

	return nil
}
