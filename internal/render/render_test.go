package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"integritas-mcp/internal/events"
)

func finished(status, preview string) events.Event {
	return events.Event{Type: events.ToolCallFinished, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{
		RequestID: "req-1", ToolName: "stamp_hash", Status: status, Summary: "Stamp accepted", Preview: preview, ByteCount: len(preview), DurationMs: 12,
	}}
}

func TestStdoutRendererDefault(t *testing.T) {
	var buf bytes.Buffer
	r := NewStdoutRenderer(&buf, false, false)
	r.Emit(events.Event{Type: events.ToolCallStarted, Payload: events.ToolCallStartedPayload{ToolName: "stamp_hash"}})
	r.Emit(finished("success", `{"ok":true}`))

	out := buf.String()
	assert.NotContains(t, out, "start")
	assert.Contains(t, out, "tool: stamp_hash ok (12ms, 11 bytes)")
	assert.Contains(t, out, "summary: Stamp accepted")
	assert.NotContains(t, out, "preview:")
}

func TestStdoutRendererVerboseIndentsPreview(t *testing.T) {
	var buf bytes.Buffer
	r := NewStdoutRenderer(&buf, true, false)
	r.Emit(finished("success", `{"ids":{"uid":"0xU"}}`))

	out := buf.String()
	assert.Contains(t, out, "preview:\n  {\n")
	assert.Contains(t, out, `"uid": "0xU"`)
}

func TestStdoutRendererQuiet(t *testing.T) {
	var buf bytes.Buffer
	r := NewStdoutRenderer(&buf, false, true)
	r.Emit(events.Event{Type: events.ServerStarted, Payload: events.ServerStartedPayload{Version: "0.1.0", Transport: "stdio"}})
	r.Emit(finished("failed", `{}`))
	assert.Equal(t, "Stamp accepted\n", buf.String())
}

func TestLogRendererLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := Multi{NewLogRenderer(zap.New(core)), nil}
	r.Emit(finished("success", `{}`))
	failed := finished("error", "boom")
	failed.Type = events.ToolCallFailed
	r.Emit(failed)
	assert.NoError(t, r.Close())

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "tool_success", entries[0].Message)
		assert.Equal(t, "tool_error", entries[1].Message)
		assert.True(t, strings.Contains(entries[1].ContextMap()["result"].(string), "boom"))
	}
}
