package cli

import (
	"context"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"snipd/internal/snippet"
)

// snippetFlags registers the flags shared by create and update.
type snippetFlags struct {
	trigger   string
	replace   string
	label     string
	file      string
	backend   string
	uppercase string
	delay     int
	leftWord  bool
	rightWord bool
	disabled  bool
}

func registerSnippetFlags(flagSet *flag.FlagSet, f *snippetFlags) {
	flagSet.StringVarP(&f.trigger, "trigger", "t", "", "Trigger text (required for create)")
	flagSet.StringVarP(&f.replace, "replace", "r", "", "Replacement text (required for create)")
	flagSet.StringVarP(&f.label, "label", "l", "", "Human-readable label")
	flagSet.StringVar(&f.file, "file", "", "Target match file (create only)")
	flagSet.StringVar(&f.backend, "backend", "", "Expansion backend: inject or clipboard")
	flagSet.StringVar(&f.uppercase, "uppercase", "", "Case style: capitalize, uppercase, or lowercase")
	flagSet.IntVar(&f.delay, "delay", 0, "Injection delay in milliseconds")
	flagSet.BoolVar(&f.leftWord, "left-word", false, "Only expand at a left word boundary")
	flagSet.BoolVar(&f.rightWord, "right-word", false, "Only expand at a right word boundary")
	flagSet.BoolVar(&f.disabled, "disabled", false, "Create the snippet disabled")
}

func cmdCreate(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd create -t <trigger> -r <replace> [flags]")
		o.Println()
		o.Println("Creates a snippet in the default match file, or in --file.")

		return nil
	}

	flagSet := flag.NewFlagSet("create", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var f snippetFlags

	registerSnippetFlags(flagSet, &f)

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if f.trigger == "" || f.replace == "" {
		return fmt.Errorf("create requires --trigger and --replace")
	}

	snip := snippet.Snippet{
		Trigger:   f.trigger,
		Replace:   f.replace,
		Label:     f.label,
		Enabled:   !f.disabled,
		Backend:   f.backend,
		DelayMS:   f.delay,
		LeftWord:  f.leftWord,
		RightWord: f.rightWord,
		Uppercase: f.uppercase,
	}

	if err := a.store.Create(ctx, snip, f.file); err != nil {
		return err
	}

	o.Println("created", f.trigger)

	return nil
}

func cmdUpdate(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd update <trigger> [flags]")
		o.Println()
		o.Println("Updates the named snippet in place. Only the given flags change;")
		o.Println("pass -t to rename the trigger.")

		return nil
	}

	flagSet := flag.NewFlagSet("update", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var (
		f       snippetFlags
		enable  bool
		disable bool
	)

	registerSnippetFlags(flagSet, &f)
	flagSet.BoolVar(&enable, "enable", false, "Enable the snippet")
	flagSet.BoolVar(&disable, "disable", false, "Disable the snippet")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: snipd update <trigger> [flags]")
	}

	if enable && disable {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	oldTrigger := rest[0]

	entry, err := a.store.Get(oldTrigger)
	if err != nil {
		return err
	}

	// Start from the current snippet and overlay only the changed flags.
	snip := entry.Snippet

	if flagSet.Changed("trigger") {
		snip.Trigger = f.trigger
	}

	if flagSet.Changed("replace") {
		snip.Replace = f.replace
	}

	if flagSet.Changed("label") {
		snip.Label = f.label
	}

	if flagSet.Changed("backend") {
		snip.Backend = f.backend
	}

	if flagSet.Changed("uppercase") {
		snip.Uppercase = f.uppercase
	}

	if flagSet.Changed("delay") {
		snip.DelayMS = f.delay
	}

	if flagSet.Changed("left-word") {
		snip.LeftWord = f.leftWord
	}

	if flagSet.Changed("right-word") {
		snip.RightWord = f.rightWord
	}

	if enable {
		snip.Enabled = true
	}

	if disable {
		snip.Enabled = false
	}

	if err := a.store.Update(ctx, oldTrigger, snip); err != nil {
		return err
	}

	o.Println("updated", oldTrigger)

	return nil
}

func cmdRm(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd rm <trigger>")

		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: snipd rm <trigger>")
	}

	if err := a.store.Delete(ctx, args[0]); err != nil {
		return err
	}

	o.Println("deleted", args[0])

	return nil
}
