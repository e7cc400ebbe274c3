package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/plugins/internalexec"
)

// Command describes a subprocess for RunCommand.
type Command struct {
	Args []string
	// Dir defaults to the current working directory.
	Dir string
	// Env entries (KEY=value) are appended to the inherited environment.
	Env []string
}

// RunProcess runs args as a subprocess. See RunCommand.
func (e *Execution) RunProcess(ctx context.Context, args ...string) error {
	return e.RunCommand(ctx, Command{Args: args})
}

// RunCommand spawns cmd and streams stdout and stderr as Message events while
// it runs. Exit code 0 marks the runner SUCCEEDED if it is still STARTED; any
// other exit code marks it FAILED, and that sticks for later processes run by
// the same step. A spawn failure is returned. If ctx ends the process is
// killed and ctx.Err() is returned.
func (e *Execution) RunCommand(ctx context.Context, cmd Command) error {
	if len(cmd.Args) == 0 {
		return fmt.Errorf("no command to run")
	}
	e.Messagef(event.Stdout, "Running command: %s", internalexec.CommandLine(cmd.Args))

	proc := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}

	code, err := internalexec.Stream(ctx, proc,
		func(line string) { e.Message(event.Stdout, line) },
		func(line string) { e.Message(event.Stderr, line) },
	)
	if err != nil {
		return err
	}

	e.log.DebugFields("process exited", map[string]any{"command": cmd.Args[0], "exit_code": code})
	if code == 0 {
		e.succeedIfStarted()
	} else {
		e.SetStatus(RunnerFailed)
	}
	return nil
}
