// Package supervisor renders the process-manager descriptor used to run the
// server as a long-lived network service.
package supervisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Modes select which network transport the supervised process serves.
const (
	ModeHTTP = "http"
	ModeSSE  = "sse"
)

// Output formats.
const (
	FormatJS   = "js"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Defaults for the descriptor.
const (
	DefaultName    = "integritas-mcp-server"
	DefaultCwd     = "/home/integritas-mcp-server"
	DefaultScript  = "/root/.local/bin/uv"
	DefaultCommand = "run integritas-mcp"
	DefaultLogDir  = "/var/log/integritas-mcp"
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 8787

	sseRestartDelayMS = 5000
)

// Descriptor is one supervised app entry.
type Descriptor struct {
	Name          string `json:"name" yaml:"name"`
	Cwd           string `json:"cwd" yaml:"cwd"`
	Script        string `json:"script" yaml:"script"`
	Args          string `json:"args" yaml:"args"`
	Interpreter   string `json:"interpreter" yaml:"interpreter"`
	ExecMode      string `json:"exec_mode" yaml:"exec_mode"`
	OutFile       string `json:"out_file" yaml:"out_file"`
	ErrorFile     string `json:"error_file" yaml:"error_file"`
	LogDateFormat string `json:"log_date_format" yaml:"log_date_format"`
	AutoRestart   bool   `json:"autorestart" yaml:"autorestart"`
	MaxRestarts   int    `json:"max_restarts" yaml:"max_restarts"`
	MinUptime     string `json:"min_uptime" yaml:"min_uptime"`
	RestartDelay  int    `json:"restart_delay,omitempty" yaml:"restart_delay,omitempty"`
	Time          bool   `json:"time" yaml:"time"`
	Watch         bool   `json:"watch" yaml:"watch"`
}

// Ecosystem is the top-level document the supervisor loads.
type Ecosystem struct {
	Apps []Descriptor `json:"apps" yaml:"apps"`
}

// Options customizes the generated descriptor. Zero values take defaults.
type Options struct {
	Mode    string
	Name    string
	Cwd     string
	Script  string
	Command string
	Host    string
	Port    int
	LogDir  string
}

// Build returns the descriptor for opts.
func Build(opts Options) (Descriptor, error) {
	if opts.Mode == "" {
		opts.Mode = ModeHTTP
	}
	if opts.Mode != ModeHTTP && opts.Mode != ModeSSE {
		return Descriptor{}, fmt.Errorf("unsupported mode %q (want %s or %s)", opts.Mode, ModeHTTP, ModeSSE)
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return Descriptor{}, fmt.Errorf("invalid port %d", opts.Port)
	}
	name := orDefault(opts.Name, DefaultName)
	if opts.Mode == ModeSSE && opts.Name == "" {
		name += "-sse"
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	logDir := orDefault(opts.LogDir, DefaultLogDir)

	d := Descriptor{
		Name:          name,
		Cwd:           orDefault(opts.Cwd, DefaultCwd),
		Script:        orDefault(opts.Script, DefaultScript),
		Args:          fmt.Sprintf("%s %s --host %s --port %s", orDefault(opts.Command, DefaultCommand), opts.Mode, orDefault(opts.Host, DefaultHost), strconv.Itoa(port)),
		Interpreter:   "none",
		ExecMode:      "fork",
		OutFile:       path.Join(logDir, "out.log"),
		ErrorFile:     path.Join(logDir, "err.log"),
		LogDateFormat: "YYYY-MM-DD HH:mm:ss",
		AutoRestart:   true,
		MaxRestarts:   10,
		MinUptime:     "5s",
		Time:          true,
		Watch:         false,
	}
	if opts.Mode == ModeSSE {
		d.RestartDelay = sseRestartDelayMS
	}
	return d, nil
}

// Render writes eco to w in format.
func Render(w io.Writer, eco Ecosystem, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(eco)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(eco); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJS, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(eco); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "// ecosystem.config.js\nmodule.exports = %s;\n", bytes.TrimRight(buf.Bytes(), "\n"))
		return err
	}
	return fmt.Errorf("unsupported format %q", format)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
