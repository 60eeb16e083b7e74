// Package cli implements the snipd command line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"snipd/internal/config"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sig <-chan os.Signal) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)

			return 1
		}
	}

	cfg, sources, err := config.Load(workDir, flags.configPath, flags.override(), envSlice(env))
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	cmd := flags.remaining[0]
	cmdArgs := flags.remaining[1:]

	if cmd == "-h" || cmd == helpFlag {
		printUsage(out)

		return 0
	}

	o := NewIO(out, errOut)

	a, err := newApp(cfg, sources, env, o)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}
	defer a.close()

	// Commands run until done or until the first interrupt.
	ctx, cancel := signalContext(sig)
	defer cancel()

	var cmdErr error

	switch cmd {
	case "ls":
		cmdErr = cmdLs(ctx, o, a, cmdArgs)
	case "search":
		cmdErr = cmdSearch(ctx, o, a, cmdArgs)
	case "show":
		cmdErr = cmdShow(ctx, o, a, cmdArgs)
	case "create":
		cmdErr = cmdCreate(ctx, o, a, cmdArgs)
	case "update":
		cmdErr = cmdUpdate(ctx, o, a, cmdArgs)
	case "rm":
		cmdErr = cmdRm(ctx, o, a, cmdArgs)
	case "edit":
		cmdErr = cmdEdit(ctx, o, a, cmdArgs)
	case "import":
		cmdErr = cmdImport(ctx, o, a, cmdArgs)
	case "export":
		cmdErr = cmdExport(ctx, o, a, cmdArgs)
	case "backup":
		cmdErr = cmdBackup(ctx, o, a, cmdArgs)
	case "restore":
		cmdErr = cmdRestore(ctx, o, a, cmdArgs)
	case "history":
		cmdErr = cmdHistory(ctx, o, a, cmdArgs)
	case "var":
		cmdErr = cmdVar(ctx, o, a, cmdArgs)
	case "watch":
		cmdErr = cmdWatch(ctx, o, a, cmdArgs)
	case "shell":
		cmdErr = cmdShell(ctx, in, o, a, cmdArgs)
	case "status", "start", "stop", "restart", "reload":
		cmdErr = cmdRuntime(ctx, o, a, cmd, cmdArgs)
	case "print-config":
		cmdErr = cmdPrintConfig(o, a)
	default:
		fprintln(errOut, "error: unknown command:", cmd)
		printUsage(errOut)

		return 1
	}

	if cmdErr != nil {
		fprintln(errOut, "error:", cmdErr)

		return 1
	}

	return o.Finish()
}

type globalFlags struct {
	workDir             string
	configPath          string
	matchDir            string
	hasMatchDirOverride bool
	remaining           []string
}

// override translates parsed global flags into a config override hook.
func (f globalFlags) override() func(*config.Config) {
	if !f.hasMatchDirOverride {
		return nil
	}

	return func(c *config.Config) {
		c.MatchDir = f.matchDir
	}
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if arg == "-C" || arg == "--cwd" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("flag requires an argument: %s", arg)
		}

		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("flag requires an argument: %s", arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	// --match-dir flag
	if arg == "--match-dir" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("flag requires an argument: %s", arg)
		}

		flags.matchDir = args[idx+1]
		flags.hasMatchDirOverride = true

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--match-dir="); ok {
		flags.matchDir = after
		flags.hasMatchDirOverride = true

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("unknown flag: %s", arg)
	}

	// Not a flag
	return consumedNone, nil
}

// signalContext cancels the returned context on the first signal.
func signalContext(sig <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	if sig != nil {
		go func() {
			select {
			case <-sig:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return ctx, cancel
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}

	return out
}

func cmdPrintConfig(o *IO, a *app) error {
	formatted, err := config.Format(a.cfg)
	if err != nil {
		return err
	}

	o.Println(formatted)

	// Print sources
	o.Println("")
	o.Println("# Sources:")

	if a.sources.Global != "" {
		o.Println("#   global:", a.sources.Global)
	}

	if a.sources.Project != "" {
		o.Println("#   project:", a.sources.Project)
	}

	if a.sources.Global == "" && a.sources.Project == "" {
		o.Println("#   (using defaults only)")
	}

	return nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == helpFlag {
			return true
		}
	}

	return false
}

func printUsage(writer io.Writer) {
	fprintln(writer, `snipd - text expansion snippet manager

Usage: snipd [options] <command> [args]

Options:
  -C, --cwd <dir>      Run as if started in <dir>
  -c, --config <file>  Use specified config file
  --match-dir <dir>    Override the match directory

Commands:
  ls [flags]                 List snippets
  search <text> [flags]      Search snippets
  show <trigger>             Show one snippet
  create -t <trigger> -r <replace> [flags]
                             Create a snippet
  update <trigger> [flags]   Update a snippet
  rm <trigger>               Delete a snippet
  edit <trigger>             Open the owning match file in your editor
  import <file> [flags]      Import a snippet pack
  export [trigger...]        Export snippets as a pack
  backup [create|list]       Manage backups of the match directory
  restore <id> [--overwrite] Restore a backup
  history [--limit=N]        Show recent mutations
  var <list|add|set|rm>      Manage global variables
  watch                      Watch the match directory until interrupted
  shell                      Interactive shell
  status|start|stop|restart|reload
                             Control the expansion runtime
  print-config               Show resolved configuration`)
}
