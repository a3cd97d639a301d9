// Package resources serves read-only documentation, schemas and server
// metadata as MCP resources.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"integritas-mcp/internal/schema"
	"integritas-mcp/internal/tools"
	"integritas-mcp/internal/util"
	"integritas-mcp/internal/version"
)

// Resource URIs.
const (
	URIOverview   = "integritas://docs/overview"
	URIFAQ        = "integritas://docs/faq"
	URITools      = "integritas://docs/tools"
	URIServerInfo = "integritas://server/info"
	URISchema     = "integritas://schema/{name}"

	schemaPrefix = "integritas://schema/"
)

const (
	toolsetVersion = "v1"
	apiVersion     = "2025-09-01"

	mimeMarkdown = "text/markdown"
	mimeJSON     = "application/json"
)

const overviewMarkdown = `# Integritas: Minima stamping

Integritas provides cryptographic timestamping on the Minima blockchain
and portable proof files you can verify anywhere.

## What this MCP server offers
- **Stamp** a content hash or a file (one-shot upload).
- **Status** lookups for the UIDs a stamp returns.
- **Verify** a proof file against the chain.
- **Manage** the Integritas API key used for upstream calls.

All timestamps are UTC ISO-8601. Hashes are normalized to lowercase hex.
`

const faqMarkdown = `# Integritas FAQ

**What is stamped?**
A normalized content hash, or the hash of a file you upload.

**How do I verify?**
Pass the proof file (JSON) returned by a stamp to ` + "`verify_data`" + `.

**What do ` + "`uid`" + ` and ` + "`tx_id`" + ` mean?**
` + "`uid`" + ` is your Integritas reference; ` + "`tx_id`" + ` is the Minima transaction id.

**Is an API key required?**
Yes for stamping and verification. Set it once with ` + "`auth_set_api_key`" + `
or pass ` + "`api_key`" + ` on a single call.
`

// schemaIndex maps public schema names to embedded schemas.
var schemaIndex = map[string]schema.Name{
	"stamp_input":   schema.StampDataInput,
	"stamp_output":  schema.ToolResponse,
	"verify_input":  schema.VerifyDataInput,
	"verify_output": schema.ToolResponse,
	"status_input":  schema.StampStatusInput,
	"tool_result":   schema.ToolResult,
}

// examples lists sample arguments shown in the tool catalog.
var examples = map[string][]map[string]any{
	"stamp_data": {
		{"file_url": "https://example.com/file.pdf"},
		{"file_path": "/srv/uploads/contract.pdf"},
		{"file_hash": "4f48a0c3e1b2d5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d34998"},
	},
	"stamp_hash": {
		{"hash": "0x82884d9b0c4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d6190ff"},
	},
	"stamp_status": {
		{"uids": []string{"0x1A2B3C"}},
	},
	"verify_data": {
		{"file_url": "https://example.com/proof.json"},
	},
	"auth_set_api_key": {
		{"api_key": "sk-your-integritas-key"},
	},
}

// SchemaNames returns the names served under integritas://schema/.
func SchemaNames() []string {
	return []string{"stamp_input", "stamp_output", "verify_input", "verify_output", "status_input", "tool_result"}
}

// SchemaDocument returns the schema resource body for name.
func SchemaDocument(name string, now time.Time) map[string]any {
	id, ok := schemaIndex[name]
	raw, found := schema.Raw(id)
	if !ok || !found {
		return map[string]any{"error": map[string]any{
			"code":    "NOT_FOUND",
			"message": fmt.Sprintf("Unknown schema '%s'", name),
		}}
	}
	return map[string]any{
		"name":         name,
		"lastModified": util.UTCISO(now),
		"schema":       raw,
	}
}

// ServerInfo describes this server and its tools.
func ServerInfo(reg *tools.Registry, now time.Time) map[string]any {
	return map[string]any{
		"name":            version.ServerName,
		"version":         version.Version,
		"toolset_version": toolsetVersion,
		"api_version":     apiVersion,
		"build_sha":       buildSHA(),
		"now":             util.UTCISO(now),
		"tools":           reg.Names(),
		"schemas":         SchemaNames(),
	}
}

// Catalog renders every registered tool with its input schema and examples.
func Catalog(reg *tools.Registry) string {
	var b strings.Builder
	b.WriteString("# Integritas MCP: Tools\n\n")
	for _, tool := range reg.Tools() {
		fmt.Fprintf(&b, "## `%s`\n\n%s\n\n", tool.Name(), tool.Description())
		b.WriteString("### Input schema\n```json\n")
		b.WriteString(indentJSON(tool.Schema()))
		b.WriteString("\n```\n")
		if ex, ok := examples[tool.Name()]; ok {
			b.WriteString("### Examples\n```json\n")
			b.WriteString(indentJSON(ex))
			b.WriteString("\n```\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("## Output\n\nStamp, status and verify tools return a `ToolResponse` whose ")
	b.WriteString("`structuredContent` is a tool result envelope (see `integritas://schema/tool_result`).\n")
	return b.String()
}

// Register adds every resource to s.
func Register(s *server.MCPServer, reg *tools.Registry) {
	s.AddResource(mcp.NewResource(URIOverview, "Integritas overview",
		mcp.WithResourceDescription("Integritas product overview (Markdown)"),
		mcp.WithMIMEType(mimeMarkdown),
	), textHandler(mimeMarkdown, func() (string, error) { return overviewMarkdown, nil }))

	s.AddResource(mcp.NewResource(URIFAQ, "Integritas FAQ",
		mcp.WithResourceDescription("Frequently asked questions (Markdown)"),
		mcp.WithMIMEType(mimeMarkdown),
	), textHandler(mimeMarkdown, func() (string, error) { return faqMarkdown, nil }))

	s.AddResource(mcp.NewResource(URITools, "Tool catalog",
		mcp.WithResourceDescription("Human-readable catalog of tools with schemas and examples"),
		mcp.WithMIMEType(mimeMarkdown),
	), textHandler(mimeMarkdown, func() (string, error) { return Catalog(reg), nil }))

	s.AddResource(mcp.NewResource(URIServerInfo, "Server info",
		mcp.WithResourceDescription("Server name, versions and tool list"),
		mcp.WithMIMEType(mimeJSON),
	), textHandler(mimeJSON, func() (string, error) { return marshal(ServerInfo(reg, time.Now())) }))

	s.AddResourceTemplate(mcp.NewResourceTemplate(URISchema, "JSON Schema",
		mcp.WithTemplateDescription("JSON Schema for inputs and outputs (e.g. schema/stamp_input)"),
		mcp.WithTemplateMIMEType(mimeJSON),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		text, err := marshal(SchemaDocument(strings.TrimPrefix(uri, schemaPrefix), time.Now()))
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: uri, MIMEType: mimeJSON, Text: text}}, nil
	})
}

func textHandler(mime string, body func() (string, error)) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := body()
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: request.Params.URI, MIMEType: mime, Text: text}}, nil
	}
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode resource: %w", err)
	}
	return string(data), nil
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func buildSHA() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			return setting.Value
		}
	}
	return "unknown"
}
