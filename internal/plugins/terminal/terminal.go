// Package terminal prints step output and, when verbose, job lifecycle lines.
package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
)

// Name identifies the plugin in the bootstrap list.
const Name = "terminal"

// Options configures the printer.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Verbosity below zero hides stdout messages; one and above adds
	// lifecycle lines and target prefixes.
	Verbosity int
	Color     bool
}

type styles struct {
	prefix  lipgloss.Style
	running lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{prefix: plain, running: plain, success: plain, failure: plain, muted: plain}
	}
	return styles{
		prefix:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		running: lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Printer writes released events to the terminal.
type Printer struct {
	opts   Options
	styles styles
	mu     sync.Mutex
}

// NewPrinter returns a printer; nil writers default to os.Stdout and os.Stderr.
func NewPrinter(opts Options) *Printer {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Printer{opts: opts, styles: newStyles(opts.Color)}
}

// New returns the processor-only plugin for the bootstrap list.
func New(opts Options) plugin.Plugin {
	p := NewPrinter(opts)
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        Name,
			Version:     "1.0.0",
			Description: "Prints step output and job progress to the terminal.",
		},
		Processors: plugin.Bind(p.Handle, event.Kinds()...),
	}
}

// Handle prints one event.
func (p *Printer) Handle(ev event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Kind == event.Message {
		p.message(ev)
		return
	}
	if p.opts.Verbosity < 1 || ev.Target == "" {
		return
	}
	if line, style, ok := p.lifecycle(ev); ok {
		fmt.Fprintln(p.opts.Stderr, style.Render(fmt.Sprintf("==> %s: %s", ev.Target, line)))
	}
}

func (p *Printer) message(ev event.Event) {
	out := p.opts.Stdout
	if ev.Channel == event.Stderr {
		out = p.opts.Stderr
	} else if p.opts.Verbosity < 0 {
		return
	}

	line := ev.Payload
	if p.opts.Verbosity >= 1 && ev.Target != "" {
		line = p.styles.prefix.Render("["+ev.Target+"]") + " " + line
	}
	fmt.Fprintln(out, line)
}

func (p *Printer) lifecycle(ev event.Event) (string, lipgloss.Style, bool) {
	s := p.styles
	switch ev.Kind {
	case event.Start:
		return "started", s.running, true
	case event.StepStart:
		return fmt.Sprintf("step %q started", ev.Step), s.muted, true
	case event.StepSuccess:
		return fmt.Sprintf("step %q succeeded", ev.Step), s.muted, true
	case event.StepFailure:
		return fmt.Sprintf("step %q failed", ev.Step), s.failure, true
	case event.StepUnknownType:
		return fmt.Sprintf("step %q has an unknown type", ev.Step), s.failure, true
	case event.Pause:
		return "waiting for nested targets", s.muted, true
	case event.Resume:
		return "resumed", s.muted, true
	case event.Success:
		return "succeeded", s.success, true
	case event.Failure:
		return "failed", s.failure, true
	case event.Canceled:
		return "canceled", s.failure, true
	default:
		return "", s.muted, false
	}
}
