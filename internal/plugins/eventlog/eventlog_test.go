package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/logger"
)

func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		out = append(out, entry)
	}
	return out
}

func TestHandlerLogsEvents(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := logger.New(logger.Options{Level: "debug", Writer: buf})
	require.NoError(t, err)

	p := New(log)
	require.Len(t, p.Processors, len(event.Kinds()))
	require.Empty(t, p.Selector())

	handle := Handler(log)
	handle(event.New(event.Start, "build"))
	handle(event.NewMessage("build", "compile", event.Stderr, "warning: unused"))

	got := entries(t, buf)
	require.Len(t, got, 2)

	require.Equal(t, "pipeline event", got[0]["message"])
	require.Equal(t, "job.start", got[0]["event_type"])
	require.Equal(t, "build", got[0]["target"])
	require.NotContains(t, got[0], "step")

	require.Equal(t, "message", got[1]["event_type"])
	require.Equal(t, "compile", got[1]["step"])
	require.Equal(t, "stderr", got[1]["channel"])
	require.Equal(t, "warning: unused", got[1]["payload"])
}

func TestHandlerSilentAboveDebug(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := logger.New(logger.Options{Level: "info", Writer: buf})
	require.NoError(t, err)

	Handler(log)(event.New(event.Success, "build"))
	require.Zero(t, buf.Len())
}
