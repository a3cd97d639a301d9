package events

import "time"

// Type represents an emitted event type.
type Type string

const (
	ServerStarted    Type = "ServerStarted"
	ServerStopped    Type = "ServerStopped"
	ToolCallStarted  Type = "ToolCallStarted"
	ToolCallFinished Type = "ToolCallFinished"
	ToolCallFailed   Type = "ToolCallFailed"
)

// Event is the common envelope for renderer events.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// ServerStartedPayload is emitted once a transport is listening.
type ServerStartedPayload struct {
	Version   string    `json:"version"`
	Transport string    `json:"transport"`
	Addr      string    `json:"addr,omitempty"`
	Tools     []string  `json:"tools"`
	StartedAt time.Time `json:"started_at"`
}

// ServerStoppedPayload closes a serving session.
type ServerStoppedPayload struct {
	Transport string    `json:"transport"`
	Reason    string    `json:"reason,omitempty"`
	StoppedAt time.Time `json:"stopped_at"`
}

// ToolCallStartedPayload marks tool call start.
type ToolCallStartedPayload struct {
	RequestID string    `json:"request_id"`
	ToolName  string    `json:"tool_name"`
	Input     any       `json:"input"`
	StartedAt time.Time `json:"started_at"`
}

// ToolCallFinishedPayload marks tool call end. Status is success, failed
// (a failed result envelope) or error.
type ToolCallFinishedPayload struct {
	RequestID  string `json:"request_id"`
	ToolName   string `json:"tool_name"`
	Status     string `json:"status"`
	Summary    string `json:"summary,omitempty"`
	Output     any    `json:"output,omitempty"`
	Preview    string `json:"preview"`
	ByteCount  int    `json:"byte_count"`
	Truncated  bool   `json:"truncated"`
	DurationMs int64  `json:"duration_ms"`
}
