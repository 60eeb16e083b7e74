package runtime_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"snipd/internal/runtime"
)

// fakeDaemon scripts the daemon CLI: each subcommand maps to a response,
// and `status` flips to running after startDelay status calls once start
// was invoked.
type fakeDaemon struct {
	mu          sync.Mutex
	calls       []string
	started     bool
	statusPolls int
	upAfter     int
	startErr    error
}

func (f *fakeDaemon) run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := strings.Join(args, " ")
	f.calls = append(f.calls, cmd)

	switch cmd {
	case "status":
		if !f.started {
			return []byte("espansod is not running"), &exec.ExitError{}
		}

		f.statusPolls++
		if f.statusPolls > f.upAfter {
			return []byte("espansod is running"), nil
		}

		return []byte("espansod is not running"), &exec.ExitError{}
	case "start":
		if f.startErr != nil {
			return nil, f.startErr
		}

		f.started = true

		return nil, nil
	case "stop":
		f.started = false

		return nil, nil
	case "cmd reload", "restart":
		return nil, nil
	}

	return nil, errors.New("unexpected command " + cmd)
}

func (f *fakeDaemon) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func newController(daemon *fakeDaemon, attempts int) *runtime.Controller {
	return runtime.NewController(runtime.Options{
		Bin:          "espansod",
		Runner:       daemon.run,
		PollAttempts: attempts,
		PollDelay:    time.Millisecond,
		Sleep:        func(time.Duration) {},
	})
}

func Test_Start_Polls_Until_The_Daemon_Reports_Running(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{upAfter: 2}
	c := newController(daemon, 5)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if status != runtime.StatusRunning {
		t.Fatalf("status = %s, want running", status)
	}
}

func Test_Start_Fails_When_The_Daemon_Never_Comes_Up(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{upAfter: 100}
	c := newController(daemon, 3)

	err := c.Start(context.Background())
	if !errors.Is(err, runtime.ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func Test_Start_Is_A_Noop_When_Already_Running(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{started: true}
	c := newController(daemon, 3)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, cmd := range daemon.commands() {
		if cmd == "start" {
			t.Fatal("start issued to an already running daemon")
		}
	}
}

func Test_Stop_Is_A_Noop_When_Already_Stopped(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{}
	c := newController(daemon, 3)

	if err := c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, cmd := range daemon.commands() {
		if cmd == "stop" {
			t.Fatal("stop issued to a stopped daemon")
		}
	}
}

func Test_Reload_Skips_A_Stopped_Daemon(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{}
	c := newController(daemon, 3)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, cmd := range daemon.commands() {
		if cmd == "cmd reload" {
			t.Fatal("reload issued to a stopped daemon")
		}
	}
}

func Test_Reload_Signals_A_Running_Daemon(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{started: true}
	c := newController(daemon, 3)

	if err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	cmds := daemon.commands()
	if cmds[len(cmds)-1] != "cmd reload" {
		t.Fatalf("commands = %v, want a trailing reload", cmds)
	}
}
