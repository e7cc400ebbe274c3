// Package dockerplugin builds and pulls docker images.
package dockerplugin

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
)

const (
	// BuildSelector builds an image from a Dockerfile.
	BuildSelector = "docker-build"
	// PullSelector pulls one or more images.
	PullSelector = "docker-pull"

	// Binary is the docker executable.
	Binary = "docker"
)

// BuildConfig is the decoded docker-build spec.
type BuildConfig struct {
	Dockerfile string
	Tags       []string
	Context    string
}

// DecodeBuild reads a BuildConfig from spec. The build context defaults to ".".
func DecodeBuild(spec config.Spec) BuildConfig {
	cfg := BuildConfig{
		Dockerfile: spec.String("dockerfile"),
		Tags:       spec.Fields("tags"),
		Context:    spec.String("context", config.ScalarKey),
	}
	if cfg.Context == "" {
		cfg.Context = "."
	}
	return cfg
}

// BuildArgs returns the argv of a docker-build step.
func BuildArgs(cfg BuildConfig) []string {
	args := []string{Binary, "build"}
	if cfg.Dockerfile != "" {
		args = append(args, "-f", cfg.Dockerfile)
	}
	for _, tag := range cfg.Tags {
		args = append(args, "-t", tag)
	}
	return append(args, cfg.Context)
}

// PullArgs returns one argv per image.
func PullArgs(images []string) [][]string {
	out := make([][]string, 0, len(images))
	for _, image := range images {
		out = append(out, []string{Binary, "pull", image})
	}
	return out
}

// DecodePull reads the image list from "image" or the scalar shorthand.
func DecodePull(spec config.Spec) ([]string, error) {
	images := spec.Fields("image", config.ScalarKey)
	if len(images) == 0 {
		return nil, errors.New("image name should be specified for docker-pull step")
	}
	return images, nil
}

// NewBuild returns the docker-build plugin.
func NewBuild() plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        BuildSelector,
			Version:     "1.0.0",
			Description: "Builds a docker image.",
		},
		Factory: func(spec config.Spec) (engine.Runner, error) {
			args := BuildArgs(DecodeBuild(spec))
			return engine.RunnerFunc(func(ctx context.Context, exec *engine.Execution) error {
				return exec.RunProcess(ctx, args...)
			}), nil
		},
	}
}

// NewPull returns the docker-pull plugin. Images are pulled concurrently;
// any failed pull fails the step.
func NewPull() plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        PullSelector,
			Version:     "1.0.0",
			Description: "Pulls docker images concurrently.",
		},
		Factory: func(spec config.Spec) (engine.Runner, error) {
			images, err := DecodePull(spec)
			if err != nil {
				return nil, err
			}
			return engine.RunnerFunc(func(ctx context.Context, exec *engine.Execution) error {
				return pullAll(ctx, exec, PullArgs(images))
			}), nil
		},
	}
}

func pullAll(ctx context.Context, exec *engine.Execution, commands [][]string) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, args := range commands {
		args := args
		group.Go(func() error {
			return exec.RunProcess(groupCtx, args...)
		})
	}
	return group.Wait()
}
