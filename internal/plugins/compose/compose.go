// Package composeplugin builds and runs docker-compose services.
package composeplugin

import (
	"context"
	"strings"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
)

const (
	// BuildSelector builds compose services.
	BuildSelector = "compose-build"
	// RunSelector runs a one-off compose service container.
	RunSelector = "compose-run"

	// Binary is the compose executable.
	Binary = "docker-compose"
)

// Config is the decoded step spec shared by both runners.
type Config struct {
	// Files defaults to the pipeline file when empty.
	Files       []string
	ProjectName string
	Services    []string
}

// Decode reads a Config from spec. Lists may be given as YAML lists or as
// whitespace-separated strings.
func Decode(spec config.Spec) Config {
	return Config{
		Files:       spec.Fields("file"),
		ProjectName: spec.String("projectName"),
		Services:    spec.Fields("services", config.ScalarKey),
	}
}

// BuildArgs returns the argv of a compose-build step.
func BuildArgs(cfg Config, dataConnection string) []string {
	args := baseArgs(cfg, dataConnection)
	args = append(args, "build")
	return append(args, cfg.Services...)
}

// RunArgs returns the argv of a compose-run step.
func RunArgs(cfg Config, dataConnection string) []string {
	args := baseArgs(cfg, dataConnection)
	args = append(args, "run", "--rm")
	return append(args, cfg.Services...)
}

func baseArgs(cfg Config, dataConnection string) []string {
	files := cfg.Files
	if len(files) == 0 {
		files = fieldsOrDefault(dataConnection)
	}

	args := []string{Binary}
	for _, file := range files {
		args = append(args, "-f", file)
	}
	if cfg.ProjectName != "" {
		args = append(args, "-p", cfg.ProjectName)
	}
	return args
}

func fieldsOrDefault(dataConnection string) []string {
	if files := strings.Fields(dataConnection); len(files) > 0 {
		return files
	}
	return []string{config.DefaultFile}
}

// NewBuild returns the compose-build plugin.
func NewBuild() plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        BuildSelector,
			Version:     "1.0.0",
			Description: "Builds docker-compose services.",
		},
		Factory: factory(BuildArgs),
	}
}

// NewRun returns the compose-run plugin.
func NewRun() plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        RunSelector,
			Version:     "1.0.0",
			Description: "Runs a docker-compose service container and removes it afterwards.",
		},
		Factory: factory(RunArgs),
	}
}

type argsFunc func(cfg Config, dataConnection string) []string

func factory(build argsFunc) engine.RunnerFactory {
	return func(spec config.Spec) (engine.Runner, error) {
		cfg := Decode(spec)
		return engine.RunnerFunc(func(ctx context.Context, exec *engine.Execution) error {
			return exec.RunProcess(ctx, build(cfg, exec.Context().Parameters.DataConnection)...)
		}), nil
	}
}
