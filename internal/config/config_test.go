package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"MINIMA_API_BASE", "MINIMA_API_KEY", "MINIMA_API_HEALTH", "MCP_ACCESS_TOKEN",
		"REQUEST_TIMEOUT_SECONDS", "MAX_RETRIES", "LOG_LEVEL", "POLL_INTERVAL",
		"POLL_MAX_ATTEMPTS", "UPSTREAM_RPS", "HOST", "PORT", "VERBOSE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultPollMaxAttempts, cfg.PollMaxAttempts)
	assert.Equal(t, "127.0.0.1:8787", cfg.Addr())
	assert.Empty(t, cfg.APIBase)
}

func TestLoadEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("MINIMA_API_BASE", "https://upstream.example/")
	t.Setenv("MINIMA_API_KEY", "from_env")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "2.5")
	t.Setenv("POLL_INTERVAL", "3")
	t.Setenv("UPSTREAM_RPS", "4")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://upstream.example", cfg.APIBase)
	assert.Equal(t, "from_env", cfg.APIKey)
	assert.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 4.0, cfg.UpstreamRPS)
}

func TestLoadDotEnvAndConfigFile(t *testing.T) {
	dir := isolate(t)
	confDir := filepath.Join(dir, "config", AppName)
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "config.yaml"),
		[]byte("minima_api_base: https://file.example\nmax_retries: 5\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("MINIMA_API_BASE=https://dotenv.example\nMCP_ACCESS_TOKEN=secret-token\n"), 0o600))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://dotenv.example", cfg.APIBase)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "secret-token", cfg.AccessToken)

	t.Setenv("MINIMA_API_BASE", "https://env.example")
	cfg, err = Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", cfg.APIBase)
}

func TestLoadFlagsWin(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9000")

	cmd := &cobra.Command{Use: "http"}
	cmd.Flags().String("host", DefaultHost, "")
	cmd.Flags().Int("port", DefaultPort, "")
	require.NoError(t, cmd.Flags().Set("port", "9100"))

	cfg, err := Load(cmd)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
}

func TestParseSeconds(t *testing.T) {
	d, err := parseSeconds("1.5")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = parseSeconds("250ms")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = parseSeconds("soon")
	require.Error(t, err)
}
