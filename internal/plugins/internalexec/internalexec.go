// Package internalexec runs subprocesses and delivers their output line by line.
package internalexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// WaitDelay bounds how long Stream waits for output pipes after the process
// has exited or been killed. Grandchildren holding the pipes open would
// otherwise block forever.
const WaitDelay = 2 * time.Second

// LineFunc receives one line of output without its trailing newline.
type LineFunc func(line string)

// Stream runs cmd, feeding each stdout and stderr line to the matching callback.
// The two streams are read by independent goroutines, so callbacks for
// different streams may run concurrently.
//
// The returned error is non-nil only when the process could not be run to
// completion: a spawn failure, or ctx ending (in which case ctx.Err() is
// returned). A process exiting non-zero yields its exit code and a nil error.
// Build cmd with exec.CommandContext so that ctx ending kills it.
func Stream(ctx context.Context, cmd *exec.Cmd, onStdout, onStderr LineFunc) (int, error) {
	stdout := NewLineWriter(onStdout)
	stderr := NewLineWriter(onStderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = WaitDelay
	}

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if ctxErr := ctx.Err(); ctxErr != nil && cmd.Process != nil {
		return -1, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		return cmd.ProcessState.ExitCode(), nil
	default:
		return -1, err
	}
}

// CommandLine renders argv for display, quoting arguments that contain spaces.
func CommandLine(args []string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			parts = append(parts, `"`+strings.ReplaceAll(arg, `"`, `\"`)+`"`)
			continue
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// LineWriter is an io.Writer that splits written bytes into lines. Writes
// and Flush may come from different goroutines.
type LineWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	deliver LineFunc
}

// NewLineWriter delivers each complete line to fn.
func NewLineWriter(fn LineFunc) *LineWriter {
	if fn == nil {
		fn = func(string) {}
	}
	return &LineWriter{deliver: fn}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.deliver(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush delivers a trailing partial line, if any.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.deliver(strings.TrimRight(line, "\r"))
}
