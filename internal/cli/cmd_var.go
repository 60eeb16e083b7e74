package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"snipd/internal/snippet"
)

func cmdVar(ctx context.Context, o *IO, a *app, args []string) error {
	if hasHelpFlag(args) || len(args) == 0 {
		o.Println("Usage: snipd var <list | add <name> --type=X [--param k=v]... | set <name> ... | rm <name>>")
		o.Println()
		o.Println("Manages the global variables of the default match file.")

		if len(args) == 0 {
			return fmt.Errorf("var requires a subcommand")
		}

		return nil
	}

	sub, rest := args[0], args[1:]

	switch sub {
	case "list", "ls":
		return listVars(o, a)
	case "add":
		return addOrSetVar(ctx, o, a, rest, false)
	case "set":
		return addOrSetVar(ctx, o, a, rest, true)
	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: snipd var rm <name>")
		}

		if err := a.store.DeleteGlobalVar(ctx, rest[0]); err != nil {
			return err
		}

		o.Println("deleted variable", rest[0])

		return nil
	}

	return fmt.Errorf("unknown var subcommand: %s", sub)
}

func listVars(o *IO, a *app) error {
	vars, err := a.store.GlobalVars()
	if err != nil {
		return err
	}

	if len(vars) == 0 {
		o.Println("no global variables")

		return nil
	}

	for _, v := range vars {
		params := make([]string, 0, len(v.Params))
		for k, val := range v.Params {
			params = append(params, fmt.Sprintf("%s=%v", k, val))
		}

		line := "-"
		if len(params) > 0 {
			line = strings.Join(params, " ")
		}

		o.Printf("%s\t%s\t%s\n", v.Name, v.Type, line)
	}

	return nil
}

func addOrSetVar(ctx context.Context, o *IO, a *app, args []string, replace bool) error {
	flagSet := flag.NewFlagSet("var", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	varType := flagSet.String("type", "", "Variable type: date, shell, echo, ...")
	params := flagSet.StringArray("param", nil, "Parameter as key=value, repeatable")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: snipd var add <name> --type=X [--param k=v]")
	}

	v := snippet.Variable{Name: rest[0], Type: *varType}

	if len(*params) > 0 {
		v.Params = make(map[string]any, len(*params))

		for _, p := range *params {
			key, value, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("malformed --param %q, want key=value", p)
			}

			v.Params[key] = value
		}
	}

	if replace {
		if err := a.store.UpdateGlobalVar(ctx, v); err != nil {
			return err
		}

		o.Println("updated variable", v.Name)

		return nil
	}

	if err := a.store.AddGlobalVar(ctx, v); err != nil {
		return err
	}

	o.Println("added variable", v.Name)

	return nil
}
