package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
)

// Name of the dashboard observer plugin.
const Name = "tui"

// Options configures Run.
type Options struct {
	Title   string
	Execute engine.ExecuteOptions
	// Input and Output default to the process terminal when nil.
	Input  io.Reader
	Output io.Writer
}

// Observer forwards every released event to send, typically Program.Send.
func Observer(send func(tea.Msg)) plugin.Plugin {
	forward := func(ev event.Event) {
		send(EventMsg{Event: ev})
	}
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        Name,
			Version:     "1.0.0",
			Description: "Live dashboard of target progress.",
		},
		Processors: plugin.Bind(forward, event.Kinds()...),
	}
}

// Run executes graph under a bubbletea dashboard and returns what
// engine.Execute returned. Ctrl+C cancels the run; the program exits once
// the graph has settled.
func Run(ctx context.Context, graph *engine.Graph, opts Options) (engine.Status, error) {
	if graph == nil {
		return engine.StatusCreated, fmt.Errorf("graph cannot be nil")
	}
	plan, err := engine.GeneratePlan(graph)
	if err != nil {
		return engine.StatusCreated, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	title := opts.Title
	if title == "" {
		title = "targets"
	}

	programOpts := []tea.ProgramOption{tea.WithoutSignalHandler()}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	program := tea.NewProgram(NewModel(title, plan, cancel), programOpts...)

	if err := plugin.Install(graph.Context(), Observer(program.Send)); err != nil {
		return engine.StatusCreated, err
	}

	result := make(chan DoneMsg, 1)
	go func() {
		status, err := engine.Execute(runCtx, graph, opts.Execute)
		done := DoneMsg{Status: status, Err: err}
		result <- done
		program.Send(done)
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		done := <-result
		return done.Status, fmt.Errorf("failed to run dashboard: %w", err)
	}

	done := <-result
	return done.Status, done.Err
}
