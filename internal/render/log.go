package render

import (
	"go.uber.org/zap"

	"integritas-mcp/internal/events"
)

// LogRenderer writes events as structured log entries. It is the renderer
// used while serving, where stdout may carry the protocol.
type LogRenderer struct {
	logger *zap.Logger
}

// NewLogRenderer creates a renderer backed by logger.
func NewLogRenderer(logger *zap.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Emit(event events.Event) {
	switch payload := event.Payload.(type) {
	case events.ServerStartedPayload:
		r.logger.Info("server_started",
			zap.String("version", payload.Version),
			zap.String("transport", payload.Transport),
			zap.String("addr", payload.Addr),
			zap.Strings("tools", payload.Tools),
		)
	case events.ServerStoppedPayload:
		r.logger.Info("server_stopped", zap.String("transport", payload.Transport), zap.String("reason", payload.Reason))
	case events.ToolCallStartedPayload:
		r.logger.Info("tool_start",
			zap.String("tool", payload.ToolName),
			zap.String("request_id", payload.RequestID),
			zap.Any("input", payload.Input),
		)
	case events.ToolCallFinishedPayload:
		fields := []zap.Field{
			zap.String("tool", payload.ToolName),
			zap.String("request_id", payload.RequestID),
			zap.String("status", payload.Status),
			zap.Int64("duration_ms", payload.DurationMs),
			zap.String("result", payload.Preview),
			zap.Bool("truncated", payload.Truncated),
		}
		if event.Type == events.ToolCallFailed {
			r.logger.Error("tool_error", fields...)
			return
		}
		r.logger.Info("tool_success", fields...)
	}
}

func (r *LogRenderer) Close() error {
	return nil
}
