package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) []byte {
	t.Helper()
	cmd := exec.Command("go", append([]string{"run", "./cmd/integritas-mcp"}, args...)...)
	cmd.Env = append(os.Environ(), "XDG_CONFIG_HOME="+t.TempDir(), "MINIMA_API_BASE=", "MINIMA_API_KEY=")
	wd, _ := os.Getwd()
	cmd.Dir = filepath.Dir(filepath.Dir(wd))

	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func TestCLISupervisorJSON(t *testing.T) {
	out := runCLI(t, "supervisor", "--mode", "sse", "--format", "json")

	var payload struct {
		Apps []map[string]any `json:"apps"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if len(payload.Apps) != 1 {
		t.Fatalf("expected one app, got %d", len(payload.Apps))
	}
	app := payload.Apps[0]
	if app["restart_delay"] != float64(5000) {
		t.Fatalf("expected restart_delay 5000, got %v", app["restart_delay"])
	}
	if !strings.Contains(app["args"].(string), " sse ") {
		t.Fatalf("expected sse args, got %v", app["args"])
	}
}

func TestCLICallHealth(t *testing.T) {
	out := runCLI(t, "call", "health", "--json")

	var payload map[string]any
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", payload["status"])
	}
}

func TestCLITools(t *testing.T) {
	out := runCLI(t, "tools")
	for _, name := range []string{"stamp_data", "verify_data", "auth_set_api_key"} {
		if !bytes.Contains(out, []byte(name)) {
			t.Fatalf("expected %s in tool list:\n%s", name, out)
		}
	}
}
