package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	AppName                = "integritas-mcp"
	DefaultRequestTimeout  = 15 * time.Second
	DefaultMaxRetries      = 3
	DefaultLogLevel        = "info"
	DefaultPollInterval    = 10 * time.Second
	DefaultPollMaxAttempts = 12
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8787
)

// Config holds runtime configuration values.
type Config struct {
	APIBase         string
	APIKey          string
	HealthURL       string
	AccessToken     string
	RequestTimeout  time.Duration
	MaxRetries      int
	LogLevel        string
	PollInterval    time.Duration
	PollMaxAttempts int
	UpstreamRPS     float64
	Host            string
	Port            int
	Verbose         bool
}

// Addr is the listen address for the network transports.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type rawConfig struct {
	MinimaAPIBase         string  `mapstructure:"minima_api_base"`
	MinimaAPIKey          string  `mapstructure:"minima_api_key"`
	MinimaAPIHealth       string  `mapstructure:"minima_api_health"`
	MCPAccessToken        string  `mapstructure:"mcp_access_token"`
	RequestTimeoutSeconds float64 `mapstructure:"request_timeout_seconds"`
	MaxRetries            int     `mapstructure:"max_retries"`
	LogLevel              string  `mapstructure:"log_level"`
	PollInterval          string  `mapstructure:"poll_interval"`
	PollMaxAttempts       int     `mapstructure:"poll_max_attempts"`
	UpstreamRPS           float64 `mapstructure:"upstream_rps"`
	Host                  string  `mapstructure:"host"`
	Port                  int     `mapstructure:"port"`
	Verbose               bool    `mapstructure:"verbose"`
}

// Load resolves configuration from defaults, config files, .env, env, and flags.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("minima_api_base", "")
	v.SetDefault("minima_api_key", "")
	v.SetDefault("minima_api_health", "")
	v.SetDefault("mcp_access_token", "")
	v.SetDefault("request_timeout_seconds", DefaultRequestTimeout.Seconds())
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("poll_interval", DefaultPollInterval.String())
	v.SetDefault("poll_max_attempts", DefaultPollMaxAttempts)
	v.SetDefault("upstream_rps", 0)
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("verbose", false)

	if cmd != nil {
		bindFlag(v, cmd, "host", "host")
		bindFlag(v, cmd, "port", "port")
		bindFlag(v, cmd, "verbose", "verbose")
		bindFlag(v, cmd, "log_level", "log-level")
		bindFlag(v, cmd, "minima_api_base", "api-base")
	}

	if err := loadConfigFile(v); err != nil {
		return Config{}, err
	}
	if err := loadDotEnv(v, ".env"); err != nil {
		return Config{}, err
	}

	var raw rawConfig
	decoder, _ := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, err
	}
	return fromRaw(raw)
}

func fromRaw(raw rawConfig) (Config, error) {
	pollInterval, err := parseSeconds(raw.PollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid poll_interval: %w", err)
	}

	cfg := Config{
		APIBase:         strings.TrimRight(strings.TrimSpace(raw.MinimaAPIBase), "/"),
		APIKey:          strings.TrimSpace(raw.MinimaAPIKey),
		HealthURL:       strings.TrimSpace(raw.MinimaAPIHealth),
		AccessToken:     strings.TrimSpace(raw.MCPAccessToken),
		RequestTimeout:  time.Duration(raw.RequestTimeoutSeconds * float64(time.Second)),
		MaxRetries:      raw.MaxRetries,
		LogLevel:        strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		PollInterval:    pollInterval,
		PollMaxAttempts: raw.PollMaxAttempts,
		UpstreamRPS:     raw.UpstreamRPS,
		Host:            raw.Host,
		Port:            raw.Port,
		Verbose:         raw.Verbose,
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = DefaultPollMaxAttempts
	}
	if cfg.UpstreamRPS < 0 {
		cfg.UpstreamRPS = 0
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// parseSeconds accepts either a Go duration ("10s") or a bare number of seconds.
func parseSeconds(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

// loadDotEnv merges a dotenv file over the config file. Real environment
// variables still win because viper consults them first.
func loadDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return v.MergeConfigMap(dotenv.AllSettings())
}

func loadConfigFile(v *viper.Viper) error {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	base := filepath.Join(configDir, AppName)
	candidates := []string{
		filepath.Join(base, "config.yaml"),
		filepath.Join(base, "config.yml"),
		filepath.Join(base, "config.json"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if errors.As(err, &notFound) {
					return nil
				}
				return err
			}
			return nil
		}
	}
	return nil
}
