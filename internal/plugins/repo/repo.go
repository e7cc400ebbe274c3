// Package repoplugin clones git repositories as pipeline steps.
package repoplugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
	"github.com/alexisbeaulieu97/runci/internal/plugins/internalexec"
)

// Selector is the step type served by this plugin.
const Selector = "git-clone"

// Config is the decoded step spec.
type Config struct {
	URL         string `validate:"required,git_url"`
	Destination string `validate:"required"`
	Branch      string
	Depth       int `validate:"gte=0"`
}

// New returns the plugin for the bootstrap list.
func New() plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        Selector,
			Version:     "1.0.0",
			Description: "Clones git repositories into the workspace.",
		},
		Factory: Factory,
	}
}

// Factory decodes spec into a runner.
func Factory(spec config.Spec) (engine.Runner, error) {
	cfg, err := Decode(spec)
	if err != nil {
		return nil, err
	}
	return &runner{cfg: cfg}, nil
}

// Decode reads a Config from spec. The url comes from "url" or the scalar
// shorthand; the destination defaults to the repository name.
func Decode(spec config.Spec) (Config, error) {
	cfg := Config{
		URL:         spec.String("url", config.ScalarKey),
		Destination: spec.String("dest", "destination"),
		Branch:      spec.String("branch"),
	}
	if cfg.Destination == "" {
		cfg.Destination = defaultDestination(cfg.URL)
	}
	if spec.Has("depth") {
		if _, err := fmt.Sscanf(spec.String("depth"), "%d", &cfg.Depth); err != nil {
			return Config{}, fmt.Errorf("invalid depth %q", spec.String("depth"))
		}
	}

	if err := config.Validator().Struct(cfg); err != nil {
		switch {
		case cfg.URL == "":
			return Config{}, errors.New(`a repository url is required (key "url")`)
		case cfg.Depth < 0:
			return Config{}, fmt.Errorf("invalid depth %d: must be >= 0", cfg.Depth)
		case cfg.Destination == "":
			return Config{}, errors.New(`a destination is required (key "dest")`)
		default:
			return Config{}, fmt.Errorf("invalid repository url %q", cfg.URL)
		}
	}
	return cfg, nil
}

func defaultDestination(url string) string {
	url = strings.TrimRight(url, "/")
	if idx := strings.LastIndexAny(url, "/:"); idx >= 0 {
		url = url[idx+1:]
	}
	return strings.TrimSuffix(path.Base(url), ".git")
}

type runner struct {
	cfg Config
}

// RunInternal clones the repository, or does nothing when the destination
// already holds a clone of the same url.
func (r *runner) RunInternal(ctx context.Context, exec *engine.Execution) error {
	cfg := r.cfg

	existing, err := inspect(cfg.Destination)
	if err != nil {
		return err
	}
	switch {
	case existing.isRepo && (existing.url == "" || existing.url == cfg.URL):
		exec.Messagef(event.Stdout, "Repository already cloned at %s", cfg.Destination)
		return nil
	case existing.isRepo:
		exec.Messagef(event.Stderr, "%s is a clone of %s, expected %s", cfg.Destination, existing.url, cfg.URL)
		exec.SetStatus(engine.RunnerFailed)
		return nil
	case existing.exists:
		exec.Messagef(event.Stderr, "%s exists but is not a git repository", cfg.Destination)
		exec.SetStatus(engine.RunnerFailed)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Destination), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	progress := internalexec.NewLineWriter(func(line string) {
		if idx := strings.LastIndex(line, "\r"); idx >= 0 {
			line = line[idx+1:]
		}
		if strings.TrimSpace(line) != "" {
			exec.Message(event.Stdout, line)
		}
	})
	defer progress.Flush()

	exec.Messagef(event.Stdout, "Cloning %s into %s", cfg.URL, cfg.Destination)
	if _, err := git.PlainCloneContext(ctx, cfg.Destination, false, cloneOptions(cfg, progress)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		exec.Messagef(event.Stderr, "failed to clone repository: %v", err)
		exec.SetStatus(engine.RunnerFailed)
		return nil
	}

	exec.Logger().DebugFields("repository cloned", map[string]any{"url": cfg.URL, "dest": cfg.Destination})
	return nil
}

func cloneOptions(cfg Config, progress *internalexec.LineWriter) *git.CloneOptions {
	opts := &git.CloneOptions{URL: cfg.URL, Progress: progress}
	if cfg.Depth > 0 {
		opts.Depth = cfg.Depth
	}
	if cfg.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(cfg.Branch)
		opts.SingleBranch = true
	}
	return opts
}

type destination struct {
	exists bool
	isRepo bool
	url    string
}

func inspect(dest string) (destination, error) {
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return destination{}, nil
		}
		return destination{}, fmt.Errorf("cannot access destination: %w", err)
	}

	repo, err := git.PlainOpen(dest)
	if err != nil {
		return destination{exists: true}, nil
	}

	out := destination{exists: true, isRepo: true}
	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		out.url = remote.Config().URLs[0]
	}
	return out, nil
}
