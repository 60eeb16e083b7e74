// Package runtime drives the external expansion daemon through its own
// CLI. All process interaction goes through an injectable Runner so the
// handshake logic is testable without a daemon on the machine.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"snipd/internal/logging"
)

// Runner executes the daemon binary once and returns its combined output.
type Runner func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Status is the daemon's observed state.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusUnknown Status = "unknown"
)

const (
	defaultPollAttempts = 10
	defaultPollDelay    = 300 * time.Millisecond
	reloadTimeout       = 5 * time.Second
)

// ErrNotRunning reports a daemon that did not come up within the poll
// window.
var ErrNotRunning = errors.New("expansion runtime is not running")

// Options configures a Controller.
type Options struct {
	// Bin is the daemon binary name or path. Required.
	Bin string

	// Logger receives operational logging. Defaults to a NopLogger.
	Logger logging.Logger

	// Runner replaces process execution, for tests. Defaults to exec.
	Runner Runner

	// PollAttempts and PollDelay bound the post-start handshake.
	PollAttempts int
	PollDelay    time.Duration

	// Sleep replaces the inter-poll wait, for tests.
	Sleep func(time.Duration)
}

// Controller manages one daemon binary.
type Controller struct {
	bin      string
	log      logging.Logger
	run      Runner
	attempts int
	delay    time.Duration
	sleep    func(time.Duration)
}

// NewController builds a Controller from opts.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	if opts.Runner == nil {
		opts.Runner = execRunner
	}

	if opts.PollAttempts <= 0 {
		opts.PollAttempts = defaultPollAttempts
	}

	if opts.PollDelay <= 0 {
		opts.PollDelay = defaultPollDelay
	}

	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	return &Controller{
		bin:      opts.Bin,
		log:      opts.Logger,
		run:      opts.Runner,
		attempts: opts.PollAttempts,
		delay:    opts.PollDelay,
		sleep:    opts.Sleep,
	}
}

// Status asks the daemon whether it is running. A non-zero exit from the
// status subcommand means stopped, not failure.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	out, err := c.run(ctx, c.bin, "status")

	text := strings.ToLower(string(out))

	switch {
	case strings.Contains(text, "not running"):
		return StatusStopped, nil
	case strings.Contains(text, "running"):
		return StatusRunning, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return StatusStopped, nil
		}

		return StatusUnknown, fmt.Errorf("querying runtime status: %w", err)
	}

	return StatusUnknown, nil
}

// Start launches the daemon and polls until it reports running. Already
// running is not an error. Fails with ErrNotRunning when the daemon never
// comes up within the poll window.
func (c *Controller) Start(ctx context.Context) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	if status == StatusRunning {
		return nil
	}

	if _, err := c.run(ctx, c.bin, "start"); err != nil {
		return fmt.Errorf("starting runtime: %w", err)
	}

	for attempt := 0; attempt < c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.sleep(c.delay)

		status, err := c.Status(ctx)
		if err != nil {
			return err
		}

		if status == StatusRunning {
			c.log.Info("runtime started", "bin", c.bin, "attempts", attempt+1)

			return nil
		}
	}

	return fmt.Errorf("%w: gave up after %d checks", ErrNotRunning, c.attempts)
}

// Stop shuts the daemon down. Stopping a stopped daemon is not an error.
func (c *Controller) Stop(ctx context.Context) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	if status == StatusStopped {
		return nil
	}

	if _, err := c.run(ctx, c.bin, "stop"); err != nil {
		return fmt.Errorf("stopping runtime: %w", err)
	}

	c.log.Info("runtime stopped", "bin", c.bin)

	return nil
}

// Restart bounces the daemon.
func (c *Controller) Restart(ctx context.Context) error {
	if _, err := c.run(ctx, c.bin, "restart"); err != nil {
		return fmt.Errorf("restarting runtime: %w", err)
	}

	return nil
}

// Reload asks a running daemon to re-read its match files. A stopped
// daemon is left alone. The call is bounded so a wedged daemon cannot
// stall a mutation's caller.
func (c *Controller) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()

	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	if status != StatusRunning {
		return nil
	}

	if _, err := c.run(ctx, c.bin, "cmd", "reload"); err != nil {
		return fmt.Errorf("reloading runtime: %w", err)
	}

	c.log.Debug("runtime reloaded", "bin", c.bin)

	return nil
}

func execRunner(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).CombinedOutput()
}
