package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"integritas-mcp/internal/schema"
)

// Meta provides execution context to tools.
type Meta struct {
	RequestID string
	MaxBytes  int
}

// Result is a structured tool execution result.
type Result struct {
	ToolName   string
	Payload    any
	Summary    string
	Failed     bool
	Preview    string
	ByteCount  int
	Truncated  bool
	DurationMs int64
}

// Tool describes a callable tool.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error)
}

// ErrInvalidArguments marks input that does not match a tool's schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// decodeInput validates input against the named schema and decodes it into v.
func decodeInput(name schema.Name, input json.RawMessage, v any) error {
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}
	if err := schema.Validate(name, input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID attaches a correlation id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the correlation id attached to ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
