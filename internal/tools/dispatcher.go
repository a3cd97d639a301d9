package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"integritas-mcp/internal/envelope"
	"integritas-mcp/internal/events"
	"integritas-mcp/internal/render"
	"integritas-mcp/internal/upstream"
	"integritas-mcp/internal/util"
)

const defaultPreviewBytes = 2000

// ErrUnknownTool is returned for names that are not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ToolCallRecord records one tool invocation.
type ToolCallRecord struct {
	RequestID  string    `json:"request_id"`
	ToolName   string    `json:"tool_name"`
	Input      any       `json:"input"`
	Output     any       `json:"output"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Dispatcher runs registered tools and reports their lifecycle to a renderer.
type Dispatcher struct {
	tools    *Registry
	renderer render.Renderer
	logger   *zap.Logger
}

// NewDispatcher constructs a Dispatcher. renderer may be nil.
func NewDispatcher(toolsReg *Registry, renderer render.Renderer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{tools: toolsReg, renderer: renderer, logger: logger}
}

func (d *Dispatcher) emit(event events.Event) {
	if d.renderer != nil {
		d.renderer.Emit(event)
	}
}

// Call executes the named tool with raw JSON input.
func (d *Dispatcher) Call(ctx context.Context, name string, input json.RawMessage, meta Meta) (Result, ToolCallRecord, error) {
	if meta.RequestID == "" {
		meta.RequestID = RequestIDFrom(ctx)
	}
	if meta.RequestID == "" {
		meta.RequestID = upstream.NewRequestID()
	}
	if meta.MaxBytes <= 0 {
		meta.MaxBytes = defaultPreviewBytes
	}
	ctx = WithRequestID(ctx, meta.RequestID)

	start := time.Now()
	inputSanitized := sanitizeInput(input)
	record := ToolCallRecord{RequestID: meta.RequestID, ToolName: name, Input: inputSanitized, Status: "error", StartedAt: start}

	tool, ok := d.tools.Get(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, name)
		d.emit(events.Event{Type: events.ToolCallFailed, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{
			RequestID: meta.RequestID, ToolName: name, Status: "error", Preview: err.Error(), ByteCount: len(err.Error()),
		}})
		return Result{}, record, err
	}

	d.emit(events.Event{Type: events.ToolCallStarted, Timestamp: start, Payload: events.ToolCallStartedPayload{
		RequestID: meta.RequestID, ToolName: name, Input: inputSanitized, StartedAt: start,
	}})

	res, err := tool.Execute(ctx, input, meta)
	duration := time.Since(start).Milliseconds()
	record.DurationMs = duration
	if err != nil {
		record.Output = map[string]any{"error": err.Error(), "duration_ms": duration}
		d.logger.Warn("tool call failed", zap.String("tool", name), zap.String("request_id", meta.RequestID), zap.Error(err))
		d.emit(events.Event{Type: events.ToolCallFailed, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{
			RequestID: meta.RequestID, ToolName: name, Status: "error", Preview: err.Error(), ByteCount: len(err.Error()), DurationMs: duration,
		}})
		return Result{}, record, err
	}

	res.ToolName = name
	res.DurationMs = duration
	if err := checkEnvelope(res.Payload); err != nil {
		d.logger.Warn("envelope_invalid", zap.String("tool", name), zap.String("request_id", meta.RequestID), zap.Error(err))
	}
	fillPreview(&res, meta.MaxBytes)
	record.Output = res.Payload
	record.Status = "success"
	if res.Failed {
		record.Status = "failed"
	}

	d.emit(events.Event{Type: events.ToolCallFinished, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{
		RequestID:  meta.RequestID,
		ToolName:   name,
		Status:     record.Status,
		Summary:    res.Summary,
		Output:     res.Payload,
		Preview:    res.Preview,
		ByteCount:  res.ByteCount,
		Truncated:  res.Truncated,
		DurationMs: duration,
	}})
	return res, record, nil
}

// checkEnvelope validates envelope payloads in Go and against the JSON Schema.
func checkEnvelope(payload any) error {
	resp, ok := payload.(envelope.ToolResponse)
	if !ok {
		return nil
	}
	if err := resp.StructuredContent.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(resp.StructuredContent)
	if err != nil {
		return err
	}
	return envelope.ValidateJSON(doc)
}

func fillPreview(res *Result, maxBytes int) {
	data, err := json.Marshal(util.RedactValue(toGeneric(res.Payload)))
	if err != nil {
		return
	}
	res.ByteCount = len(data)
	preview, truncated := util.TruncateBytes(string(data), maxBytes)
	res.Preview = preview
	res.Truncated = truncated
}

// toGeneric round-trips v through JSON so struct payloads can be redacted.
func toGeneric(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func sanitizeInput(args json.RawMessage) any {
	if len(args) == 0 {
		return map[string]any{}
	}
	var data any
	if err := json.Unmarshal(args, &data); err != nil {
		return map[string]any{"raw": util.RedactSecrets(string(args))}
	}
	return util.RedactValue(data)
}
