package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Registry stores available tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry from tools.
func NewRegistry(items ...Tool) *Registry {
	reg := &Registry{tools: map[string]Tool{}}
	for _, item := range items {
		reg.tools[item.Name()] = item
	}
	return reg
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the tools sorted by name.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, name := range r.Names() {
		out = append(out, r.tools[name])
	}
	return out
}

// MCPTools converts tool definitions to MCP tool declarations.
func (r *Registry) MCPTools() []mcp.Tool {
	defs := make([]mcp.Tool, 0, len(r.tools))
	for _, tool := range r.Tools() {
		raw, _ := json.Marshal(tool.Schema())
		defs = append(defs, mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), raw))
	}
	return defs
}

// Register adds every tool to s, routing calls through d.
func (r *Registry) Register(s *server.MCPServer, d *Dispatcher) {
	for _, def := range r.MCPTools() {
		name := def.Name
		s.AddTool(def, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			input, err := json.Marshal(request.GetRawArguments())
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			res, record, err := d.Call(ctx, name, input, Meta{RequestID: RequestIDFrom(ctx)})
			d.logger.Debug("tool_call_record", zap.Any("record", record))
			if err != nil {
				if errors.Is(err, ErrInvalidArguments) || errors.Is(err, ErrUnknownTool) {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return nil, err
			}
			return toMCPResult(res), nil
		})
	}
}

func toMCPResult(res Result) *mcp.CallToolResult {
	text, err := json.Marshal(res.Payload)
	if err != nil {
		return mcp.NewToolResultStructured(res.Payload, res.Summary)
	}
	return mcp.NewToolResultStructured(res.Payload, string(text))
}
