// Package commandplugin runs shell commands as pipeline steps.
package commandplugin

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sort"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
)

// Selector is the step type served by this plugin.
const Selector = "command"

// Config is the decoded step spec.
//
//	- command:
//	    run: [make deps, make test]
//	    shell: /bin/bash
//	    workdir: ./src
//	    env: {CGO_ENABLED: "0"}
type Config struct {
	Commands []string `validate:"required,min=1,dive,required"`
	Shell    string
	WorkDir  string
	Env      map[string]string
}

// New returns the plugin for the bootstrap list.
func New() plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        Selector,
			Version:     "1.0.0",
			Description: "Executes shell commands with environment and working directory control.",
		},
		Factory: Factory,
	}
}

// Factory decodes spec into a runner. The command comes from "run" or the
// scalar shorthand.
func Factory(spec config.Spec) (engine.Runner, error) {
	cfg, err := Decode(spec)
	if err != nil {
		return nil, err
	}
	return &runner{cfg: cfg}, nil
}

// Decode reads a Config from spec.
func Decode(spec config.Spec) (Config, error) {
	cfg := Config{
		Commands: spec.Strings("run", config.ScalarKey),
		Shell:    spec.String("shell"),
		WorkDir:  spec.String("workdir"),
		Env:      spec.StringMap("env"),
	}
	if err := config.Validator().Struct(cfg); err != nil {
		return Config{}, errors.New(`a command is required (key "run")`)
	}
	return cfg, nil
}

type runner struct {
	cfg Config
}

// RunInternal runs the commands in order and stops at the first failure.
func (r *runner) RunInternal(ctx context.Context, exec *engine.Execution) error {
	shell, shellArgs, err := determineShell(r.cfg.Shell)
	if err != nil {
		return err
	}

	env := buildEnv(r.cfg.Env)
	for _, command := range r.cfg.Commands {
		args := append(append([]string{shell}, shellArgs...), command)
		if err := exec.RunCommand(ctx, engine.Command{Args: args, Dir: r.cfg.WorkDir, Env: env}); err != nil {
			return err
		}
		if exec.Status() == engine.RunnerFailed {
			return nil
		}
	}
	return nil
}

func determineShell(explicit string) (string, []string, error) {
	if explicit != "" {
		return explicit, []string{"-c"}, nil
	}

	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}, nil
	}

	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}

	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}

	return "", nil, fmt.Errorf("no suitable shell found")
}

// buildEnv renders custom variables as sorted KEY=value entries.
func buildEnv(custom map[string]string) []string {
	env := make([]string, 0, len(custom))
	for k, v := range custom {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)
	return env
}
