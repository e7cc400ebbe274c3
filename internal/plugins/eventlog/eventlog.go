// Package eventlog writes every pipeline event to the structured logger.
package eventlog

import (
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/logger"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
)

// Name identifies the plugin in the bootstrap list.
const Name = "eventlog"

// New returns a processor-only plugin logging each released event at debug
// level.
func New(log *logger.Logger) plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        Name,
			Version:     "1.0.0",
			Description: "Writes pipeline events as structured debug log entries.",
		},
		Processors: plugin.Bind(Handler(log), event.Kinds()...),
	}
}

// Handler renders one event as a log entry.
func Handler(log *logger.Logger) event.Handler {
	return func(ev event.Event) {
		if !log.DebugEnabled() {
			return
		}

		fields := map[string]any{
			"event_type": ev.Kind.String(),
			"target":     ev.Target,
		}
		if ev.Step != "" {
			fields["step"] = ev.Step
		}
		if ev.Kind == event.Message {
			fields["channel"] = ev.Channel.String()
			fields["payload"] = ev.Payload
		}
		log.DebugFields("pipeline event", fields)
	}
}
