// Package tui renders a live dashboard of a pipeline run.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/event"
)

// EventMsg carries one released pipeline event.
type EventMsg struct {
	Event event.Event
}

// DoneMsg reports that the run has settled.
type DoneMsg struct {
	Status engine.Status
	Err    error
}

// TargetState is what the dashboard knows about one target.
type TargetState struct {
	Name   string
	Status engine.Status
	Paused bool
	Step   string
	// LastLine is the most recent output line of the target.
	LastLine string
}

// Model contains the bubbletea state of the run dashboard.
type Model struct {
	title   string
	targets map[string]*TargetState
	order   []string
	spinner spinner.Model
	cancel  context.CancelFunc

	settled     int
	interrupted bool
	done        bool
	outcome     engine.Status
	err         error
}

// NewModel prepares a dashboard listing the plan's targets level by level.
// cancel is called when the user interrupts the run.
func NewModel(title string, plan *engine.ExecutionPlan, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	m := Model{
		title:   title,
		targets: make(map[string]*TargetState),
		spinner: s,
		cancel:  cancel,
	}
	if plan != nil {
		for _, level := range plan.Levels {
			for _, name := range level.Targets {
				m.ensureTarget(name)
			}
		}
	}
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Target returns the state of a tracked target.
func (m Model) Target(name string) (TargetState, bool) {
	state, ok := m.targets[name]
	if !ok {
		return TargetState{}, false
	}
	return *state, true
}

// Settled returns the number of targets that reached a terminal status.
func (m Model) Settled() int {
	return m.settled
}

// Done reports whether the run is over.
func (m Model) Done() bool {
	return m.done
}

// Outcome returns the root status and engine error once Done.
func (m Model) Outcome() (engine.Status, error) {
	return m.outcome, m.err
}

func (m *Model) ensureTarget(name string) *TargetState {
	if state, ok := m.targets[name]; ok {
		return state
	}
	state := &TargetState{Name: name}
	m.targets[name] = state
	m.order = append(m.order, name)
	return state
}
