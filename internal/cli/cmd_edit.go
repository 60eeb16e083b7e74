package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

var errNoEditorFound = errors.New("no editor found (set editor in config or $EDITOR)")

// resolveEditor checks for an available editor using the env map.
// Priority: config editor -> $EDITOR -> vi -> nano -> error.
func resolveEditor(a *app) (string, error) {
	if a.cfg.Editor != "" {
		if _, err := exec.LookPath(a.cfg.Editor); err == nil {
			return a.cfg.Editor, nil
		}
	}

	if editor := a.env["EDITOR"]; editor != "" {
		if _, err := exec.LookPath(editor); err == nil {
			return editor, nil
		}
	}

	if _, err := exec.LookPath("vi"); err == nil {
		return "vi", nil
	}

	if _, err := exec.LookPath("nano"); err == nil {
		return "nano", nil
	}

	return "", errNoEditorFound
}

// cmdEdit opens the file owning a trigger in the user's editor, then
// refreshes the view and the daemon once the editor exits.
func cmdEdit(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd edit <trigger>")
		o.Println()
		o.Println("Opens the match file owning the trigger in your editor.")

		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: snipd edit <trigger>")
	}

	entry, err := a.store.Get(args[0])
	if err != nil {
		return err
	}

	editor, err := resolveEditor(a)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, editor, entry.File)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", editor, err)
	}

	// The edit happened outside the store.
	a.store.Cache().Invalidate()

	if warnings, warnErr := a.store.Warnings(); warnErr == nil {
		for _, w := range warnings {
			o.Warn("edited file no longer parses: "+w.Path, w.Err.Error())
		}
	}

	if err := a.runtime.Reload(ctx); err != nil {
		o.Warn("runtime reload failed", err.Error())
	}

	return nil
}
