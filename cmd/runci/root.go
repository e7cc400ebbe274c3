package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/logger"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
	"github.com/alexisbeaulieu97/runci/internal/plugins"
	"github.com/alexisbeaulieu97/runci/internal/tui"
)

type rootOptions struct {
	file       string
	sequential bool
	verbose    int
	quiet      bool
	tui        bool
	list       bool
	dryRun     bool
	noColor    bool
	plugins    bool
}

// verbosity folds -q and -v into the counter used by the printers.
func (o rootOptions) verbosity() int {
	if o.quiet {
		return -1
	}
	return o.verbose
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "runci [flags] [TARGET...]",
		Short:         "runci runs the targets of a local CI pipeline",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts, args)
		},
	}
	cmd.SetVersionTemplate("runci {{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", config.DefaultFile, "Path to the pipeline file (.yml or .hcl)")
	flags.BoolVar(&opts.sequential, "sequential", false, "Run dependencies one at a time in declaration order")
	flags.CountVarP(&opts.verbose, "verbose", "v", "Print lifecycle lines; repeat for debug logs")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Hide step standard output")
	flags.BoolVar(&opts.tui, "tui", false, "Show a live dashboard instead of raw output")
	flags.BoolVar(&opts.list, "list", false, "List targets and their dependencies")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the execution plan without running it")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&opts.plugins, "plugins", false, "List the available plugins")
	cmd.MarkFlagsMutuallyExclusive("quiet", "verbose")

	return cmd
}

func runPipeline(cmd *cobra.Command, opts *rootOptions, targets []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	verbosity := opts.verbosity()

	log, err := logger.New(logger.Options{
		Level:         logger.LevelForVerbosity(verbosity),
		HumanReadable: true,
		Writer:        errOut,
	})
	if err != nil {
		return err
	}

	interactive := isTerminal(out)
	bootstrap := plugins.Bootstrap(plugins.Options{
		Logger:    log,
		Stdout:    out,
		Stderr:    errOut,
		Verbosity: verbosity,
		Color:     interactive && !opts.noColor,
		Terminal:  !(opts.tui && interactive),
	})

	if opts.plugins {
		printPlugins(out, bootstrap)
		return nil
	}

	project, err := config.Load(opts.file)
	if err != nil {
		return configError(err)
	}
	if opts.list {
		printTargets(out, project)
		return nil
	}

	params := config.Parameters{DataConnection: opts.file, Targets: targets, Verbosity: verbosity}
	rc, err := engine.NewContext(project, params, engine.WithLogger(log))
	if err != nil {
		return configError(err)
	}
	if err := plugin.Install(rc, bootstrap...); err != nil {
		return configError(err)
	}

	graph, err := engine.Build(rc)
	if err != nil {
		return configError(err)
	}

	if opts.dryRun {
		plan, err := engine.GeneratePlan(graph)
		if err != nil {
			return configError(err)
		}
		fmt.Fprint(out, plan.String())
		return nil
	}

	log.WithFields(map[string]any{"run_id": rc.RunID(), "file": opts.file}).Debug("pipeline loaded")

	execOpts := engine.ExecuteOptions{Sequential: opts.sequential}
	var status engine.Status
	if opts.tui && interactive {
		status, err = tui.Run(cmd.Context(), graph, tui.Options{
			Title:   strings.Join(params.RequestedTargets(), " "),
			Execute: execOpts,
		})
	} else {
		status, err = engine.Execute(cmd.Context(), graph, execOpts)
	}
	if err != nil {
		log.Error(err, "run finished with an engine error")
	}

	message, code := outcome(status, err)
	if code == exitSuccess {
		if verbosity >= 0 {
			fmt.Fprintln(out, message)
		}
		return nil
	}
	return &ExitError{Code: code, Message: message, Err: err}
}

func printTargets(out io.Writer, project *config.Project) {
	for _, target := range project.Targets {
		if len(target.Dependencies) == 0 {
			fmt.Fprintln(out, target.Name)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", target.Name, strings.Join(target.Dependencies, " "))
	}
}

func printPlugins(out io.Writer, list []plugin.Plugin) {
	for _, meta := range plugin.List(list...) {
		line := fmt.Sprintf("%-14s %-8s", meta.Name, meta.Version)
		if meta.Description != "" {
			line += " " + meta.Description
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
