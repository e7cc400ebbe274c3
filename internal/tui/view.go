package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/tui/components"
)

const maxLineWidth = 60

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("runci • %s", m.title)))
	sections = append(sections, sectionStyle.Render("Progress"), components.NewProgress(len(m.order)).View(m.settled))

	if len(m.order) > 0 {
		lines := make([]string, 0, len(m.order))
		for _, name := range m.order {
			lines = append(lines, m.renderTarget(m.targets[name]))
		}
		sections = append(sections, sectionStyle.Render("Targets"), strings.Join(lines, "\n"))
	}

	data := components.SummaryData{Total: len(m.order), Interrupted: m.interrupted}
	for _, state := range m.targets {
		switch state.Status {
		case engine.StatusSucceeded:
			data.Succeeded++
		case engine.StatusFailed:
			data.Failed++
		case engine.StatusCanceled:
			data.Canceled++
		}
	}
	if m.done {
		data.Outcome = m.outcome.String()
	}
	if summary := components.NewSummary(data).View(); strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) renderTarget(state *TargetState) string {
	line := fmt.Sprintf(" %s %s", m.icon(state), state.Name)
	if state.Status.Terminal() || state.Status == engine.StatusCreated {
		return line
	}

	detail := state.Step
	if state.Paused {
		detail += " (waiting for nested targets)"
	}
	if state.LastLine != "" {
		detail += ": " + truncate(state.LastLine, maxLineWidth)
	}
	if detail != "" {
		line += " " + detailStyle.Render(detail)
	}
	return line
}

func (m Model) icon(state *TargetState) string {
	switch state.Status {
	case engine.StatusSucceeded:
		return successStyle.Render("✓")
	case engine.StatusFailed:
		return failureStyle.Render("✗")
	case engine.StatusCanceled:
		return canceledStyle.Render("⊘")
	case engine.StatusStarted, engine.StatusPaused:
		return m.spinner.View()
	default:
		return pendingStyle.Render("…")
	}
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
