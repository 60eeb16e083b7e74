package cli

import (
	"context"
	"fmt"
)

// cmdRuntime maps the lifecycle commands onto the controller.
func cmdRuntime(ctx context.Context, o *IO, a *app, cmd string, args []string) error {
	if hasHelpFlag(args) {
		o.Println("Usage: snipd", cmd)
		o.Println()
		o.Println("Controls the expansion runtime (" + a.cfg.RuntimeBin + ").")

		return nil
	}

	switch cmd {
	case "status":
		status, err := a.runtime.Status(ctx)
		if err != nil {
			return err
		}

		o.Println(string(status))

		return nil
	case "start":
		if err := a.runtime.Start(ctx); err != nil {
			return err
		}

		o.Println("runtime running")

		return nil
	case "stop":
		if err := a.runtime.Stop(ctx); err != nil {
			return err
		}

		o.Println("runtime stopped")

		return nil
	case "restart":
		if err := a.runtime.Restart(ctx); err != nil {
			return err
		}

		o.Println("runtime restarted")

		return nil
	case "reload":
		if err := a.runtime.Reload(ctx); err != nil {
			return err
		}

		o.Println("runtime reloaded")

		return nil
	}

	return fmt.Errorf("unknown runtime command: %s", cmd)
}
