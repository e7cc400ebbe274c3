// Package plugins holds the fixed bootstrap list of step runners and
// observers.
package plugins

import (
	"io"

	"github.com/alexisbeaulieu97/runci/internal/logger"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
	commandplugin "github.com/alexisbeaulieu97/runci/internal/plugins/command"
	composeplugin "github.com/alexisbeaulieu97/runci/internal/plugins/compose"
	dockerplugin "github.com/alexisbeaulieu97/runci/internal/plugins/docker"
	"github.com/alexisbeaulieu97/runci/internal/plugins/eventlog"
	repoplugin "github.com/alexisbeaulieu97/runci/internal/plugins/repo"
	"github.com/alexisbeaulieu97/runci/internal/plugins/targetrun"
	"github.com/alexisbeaulieu97/runci/internal/plugins/terminal"
)

// Options feeds the observers of the bootstrap list.
type Options struct {
	Logger *logger.Logger
	Stdout io.Writer
	Stderr io.Writer
	// Verbosity follows the CLI counter: -1 quiet, 0 default, 1+ verbose.
	Verbosity int
	Color     bool
	// Terminal disables the terminal printer when false, e.g. under the TUI.
	Terminal bool
}

// Runners returns the step-type plugins.
func Runners() []plugin.Plugin {
	return []plugin.Plugin{
		composeplugin.NewBuild(),
		composeplugin.NewRun(),
		dockerplugin.NewBuild(),
		dockerplugin.NewPull(),
		targetrun.New(),
		commandplugin.New(),
		repoplugin.New(),
	}
}

// Bootstrap returns the full list in registration order: runners first,
// then the event log, then the terminal printer.
func Bootstrap(opts Options) []plugin.Plugin {
	list := Runners()
	list = append(list, eventlog.New(opts.Logger))
	if opts.Terminal {
		list = append(list, terminal.New(terminal.Options{
			Stdout:    opts.Stdout,
			Stderr:    opts.Stderr,
			Verbosity: opts.Verbosity,
			Color:     opts.Color,
		}))
	}
	return list
}
