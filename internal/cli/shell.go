package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"snipd/internal/snippet"
)

var shellCommands = []string{
	"ls", "search", "show", "create", "rm", "enable", "disable",
	"vars", "dupes", "status", "reload", "help", "exit", "quit",
}

// shell is the interactive loop over one app.
type shell struct {
	app   *app
	o     *IO
	liner *liner.State
}

// historyFile returns the path to the shell history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".snipd_history")
}

func cmdShell(ctx context.Context, _ io.Reader, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd shell")
		o.Println()
		o.Println("Interactive shell over the match directory. Type 'help' inside.")

		return nil
	}

	s := &shell{app: a, o: o}

	return s.run(ctx)
}

func (s *shell) run(ctx context.Context) error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = s.liner.ReadHistory(f)
		f.Close()
	}

	s.o.Println("snipd shell -", s.app.cfg.MatchDir)
	s.o.Println("Type 'help' for available commands.")
	s.o.Println()

	for {
		if ctx.Err() != nil {
			break
		}

		line, err := s.liner.Prompt("snipd> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				s.o.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			s.o.Println("Bye!")

			break
		}

		if err := s.dispatch(ctx, cmd, args); err != nil {
			s.o.Println("error:", err)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		s.printHelp()

		return nil

	case "ls", "list":
		entries, err := s.app.store.List()
		if err != nil {
			return err
		}

		printEntries(s.o, entries)

		return nil

	case "search":
		if len(args) == 0 {
			return fmt.Errorf("usage: search <text>")
		}

		return cmdSearch(ctx, s.o, s.app, []string{strings.Join(args, " ")})

	case "show":
		if len(args) != 1 {
			return fmt.Errorf("usage: show <trigger>")
		}

		entry, err := s.app.store.Get(args[0])
		if err != nil {
			return err
		}

		printSnippet(s.o, entry)

		return nil

	case "create":
		return s.createInteractive(ctx, args)

	case "rm", "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm <trigger>")
		}

		if err := s.app.store.Delete(ctx, args[0]); err != nil {
			return err
		}

		s.o.Println("deleted", args[0])

		return nil

	case "enable", "disable":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <trigger>", cmd)
		}

		return s.setEnabled(ctx, args[0], cmd == "enable")

	case "vars":
		return listVars(s.o, s.app)

	case "dupes":
		return s.printDupes()

	case "status":
		status, err := s.app.runtime.Status(ctx)
		if err != nil {
			return err
		}

		s.o.Println(string(status))

		return nil

	case "reload":
		return s.app.runtime.Reload(ctx)
	}

	return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
}

// createInteractive prompts for the replacement text so multi-line
// snippets work without shell quoting.
func (s *shell) createInteractive(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: create <trigger>")
	}

	trigger := args[0]

	var lines []string

	s.o.Println("replacement text, finish with a single '.' line:")

	for {
		line, err := s.liner.Prompt("... ")
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		if line == "." {
			break
		}

		lines = append(lines, line)
	}

	snip := snippet.Snippet{
		Trigger: trigger,
		Replace: strings.Join(lines, "\n"),
		Enabled: true,
	}

	if err := s.app.store.Create(ctx, snip, ""); err != nil {
		return err
	}

	s.o.Println("created", trigger)

	return nil
}

func (s *shell) setEnabled(ctx context.Context, trigger string, enabled bool) error {
	entry, err := s.app.store.Get(trigger)
	if err != nil {
		return err
	}

	snip := entry.Snippet
	snip.Enabled = enabled

	if err := s.app.store.Update(ctx, trigger, snip); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}

	s.o.Println(state, trigger)

	return nil
}

func (s *shell) printDupes() error {
	dupes, err := s.app.store.DuplicateTriggers()
	if err != nil {
		return err
	}

	if len(dupes) == 0 {
		s.o.Println("no duplicate triggers")

		return nil
	}

	for trigger, entries := range dupes {
		files := make([]string, 0, len(entries))
		for _, entry := range entries {
			files = append(files, filepath.Base(entry.File))
		}

		s.o.Printf("%s\t%s\n", trigger, strings.Join(files, " "))
	}

	return nil
}

func (s *shell) printHelp() {
	s.o.Println(`Commands:
  ls                      List snippets
  search <text>           Search snippets
  show <trigger>          Show one snippet
  create <trigger>        Create a snippet (prompts for text)
  rm <trigger>            Delete a snippet
  enable|disable <trigger>
  vars                    List global variables
  dupes                   Show duplicate triggers
  status                  Expansion runtime status
  reload                  Reload the expansion runtime
  exit                    Leave the shell`)
}

// completer provides tab completion for command names.
func (s *shell) completer(line string) []string {
	if strings.Contains(line, " ") {
		return nil
	}

	var out []string

	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, strings.ToLower(line)) {
			out = append(out, cmd)
		}
	}

	return out
}

// saveHistory persists command history to disk.
func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = s.liner.WriteHistory(f)
			f.Close()
		}
	}
}
