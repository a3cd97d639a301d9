package version

// Version is overridden at build time via -ldflags.
var Version = "0.1.0"

// ServerName is the name advertised to MCP clients.
const ServerName = "Integritas MCP Server"
