package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/event"
)

// Update handles bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case EventMsg:
		m.apply(msg.Event)
		return m, nil
	case DoneMsg:
		m.done = true
		m.outcome = msg.Status
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && !m.interrupted {
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) apply(ev event.Event) {
	// the anonymous root aggregates requested targets and is not shown
	if ev.Target == "" {
		return
	}
	state := m.ensureTarget(ev.Target)

	switch ev.Kind {
	case event.Start:
		state.Status = engine.StatusStarted
	case event.StepStart:
		state.Step = ev.Step
	case event.Message:
		if ev.Payload != "" {
			state.LastLine = ev.Payload
		}
	case event.Pause:
		state.Paused = true
	case event.Resume:
		state.Paused = false
	case event.Success:
		m.settle(state, engine.StatusSucceeded)
	case event.Failure:
		m.settle(state, engine.StatusFailed)
	case event.Canceled:
		m.settle(state, engine.StatusCanceled)
	}
}

func (m *Model) settle(state *TargetState, status engine.Status) {
	if !state.Status.Terminal() {
		m.settled++
	}
	state.Status = status
	state.Paused = false
}
