// Package components holds the reusable pieces of the run dashboard.
package components

import (
	"fmt"
	"strings"
)

// SummaryData aggregates target counts and the run outcome.
type SummaryData struct {
	Total     int
	Succeeded int
	Failed    int
	Canceled  int
	// Outcome is the root status once the run is over, empty before.
	Outcome     string
	Interrupted bool
}

// Summary renders a textual run summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary; it is empty until something has settled.
func (s Summary) View() string {
	d := s.data
	var lines []string
	if settled := d.Succeeded + d.Failed + d.Canceled; settled > 0 {
		parts := []string{fmt.Sprintf("%d succeeded", d.Succeeded)}
		if d.Failed > 0 {
			parts = append(parts, fmt.Sprintf("%d failed", d.Failed))
		}
		if d.Canceled > 0 {
			parts = append(parts, fmt.Sprintf("%d canceled", d.Canceled))
		}
		lines = append(lines, "Targets: "+strings.Join(parts, ", "))
	}

	if d.Interrupted && d.Outcome == "" {
		lines = append(lines, "Canceling, waiting for running steps to stop...")
	}
	if d.Outcome != "" {
		lines = append(lines, "Pipeline "+d.Outcome)
	}
	return strings.Join(lines, "\n")
}
