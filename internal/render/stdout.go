package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"integritas-mcp/internal/events"
	"integritas-mcp/internal/util"
)

const previewLines = 40

// StdoutRenderer streams events to a plain text writer.
type StdoutRenderer struct {
	w       io.Writer
	mu      sync.Mutex
	verbose bool
	quiet   bool
}

// NewStdoutRenderer creates a renderer for plain text streaming.
func NewStdoutRenderer(w io.Writer, verbose bool, quiet bool) *StdoutRenderer {
	return &StdoutRenderer{w: w, verbose: verbose, quiet: quiet}
}

func (r *StdoutRenderer) Emit(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case events.ServerStarted:
		if payload, ok := event.Payload.(events.ServerStartedPayload); ok {
			if r.quiet {
				return
			}
			where := payload.Transport
			if payload.Addr != "" {
				where += " on " + payload.Addr
			}
			fmt.Fprintf(r.w, "integritas-mcp v%s | %s | tools: %s\n", payload.Version, where, strings.Join(payload.Tools, ", "))
		}
	case events.ServerStopped:
		if payload, ok := event.Payload.(events.ServerStoppedPayload); ok {
			if r.quiet {
				return
			}
			fmt.Fprintf(r.w, "stopped %s", payload.Transport)
			if payload.Reason != "" {
				fmt.Fprintf(r.w, ": %s", payload.Reason)
			}
			fmt.Fprintln(r.w)
		}
	case events.ToolCallStarted:
		if payload, ok := event.Payload.(events.ToolCallStartedPayload); ok {
			if r.quiet || !r.verbose {
				return
			}
			fmt.Fprintf(r.w, "tool: %s start (%s)\n", payload.ToolName, payload.RequestID)
			fmt.Fprintf(r.w, "input: %v\n", payload.Input)
		}
	case events.ToolCallFinished, events.ToolCallFailed:
		if payload, ok := event.Payload.(events.ToolCallFinishedPayload); ok {
			if r.quiet {
				if payload.Summary != "" {
					fmt.Fprintln(r.w, payload.Summary)
				}
				return
			}
			status := payload.Status
			switch status {
			case "success":
				status = "ok"
			case "error":
				status = "err"
			}
			trunc := ""
			if payload.Truncated {
				trunc = ", truncated"
			}
			fmt.Fprintf(r.w, "tool: %s %s (%dms, %d bytes%s)\n", payload.ToolName, status, payload.DurationMs, payload.ByteCount, trunc)
			if payload.Summary != "" {
				fmt.Fprintf(r.w, "summary: %s\n", payload.Summary)
			}
			if payload.Status == "error" && payload.Preview != "" {
				fmt.Fprintf(r.w, "error: %s\n", payload.Preview)
			}
			if r.verbose && payload.Preview != "" && payload.Status != "error" {
				fmt.Fprintln(r.w, "preview:")
				for _, line := range strings.Split(util.Preview(indentJSON(payload.Preview), previewLines, 0), "\n") {
					fmt.Fprintf(r.w, "  %s\n", line)
				}
			}
		}
	}
}

func (r *StdoutRenderer) Close() error {
	return nil
}

func indentJSON(text string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return text
	}
	return buf.String()
}
