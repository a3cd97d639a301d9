package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"integritas-mcp/internal/config"
	"integritas-mcp/internal/credentials"
	"integritas-mcp/internal/render"
	"integritas-mcp/internal/server"
	"integritas-mcp/internal/service"
	"integritas-mcp/internal/supervisor"
	"integritas-mcp/internal/tools"
	"integritas-mcp/internal/upstream"
	"integritas-mcp/internal/version"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "integritas-mcp",
		Short:         "integritas-mcp - MCP server for Integritas stamping and verification",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Bool("verbose", false, "Verbose output and development logging")
	cmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("api-base", "", "Integritas API base URL (overrides MINIMA_API_BASE)")

	cmd.AddCommand(
		newStdioCmd(),
		newNetworkCmd(server.TransportHTTP, "Serve MCP over streamable HTTP at /mcp"),
		newNetworkCmd(server.TransportSSE, "Serve MCP over SSE at /sse"),
		newHealthCmd(),
		newCallCmd(),
		newToolsCmd(),
		newSupervisorCmd(),
	)
	return cmd
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *credentials.Store
	service    *service.Service
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
}

func newApp(cmd *cobra.Command, renderer func(*zap.Logger) render.Renderer) (*app, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}
	logger := buildLogger(cfg.Verbose, cfg.LogLevel)

	store := credentials.NewStore(cfg.APIKey, credentials.OSKeyring(), logger)
	client := upstream.New(upstream.Options{
		BaseURL:    cfg.APIBase,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		RPS:        cfg.UpstreamRPS,
		Keys:       store,
		Logger:     logger,
	})
	svc := service.New(client, service.Options{
		HealthURL:       cfg.HealthURL,
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
		Version:         version.Version,
		Logger:          logger,
	})
	registry := tools.NewRegistry(tools.Builtins(svc, store)...)

	var r render.Renderer
	if renderer != nil {
		r = renderer(logger)
	}
	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		service:    svc,
		registry:   registry,
		dispatcher: tools.NewDispatcher(registry, r, logger),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) newServer(renderer render.Renderer) *server.Server {
	return server.New(server.Deps{
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Service:     a.service,
		Renderer:    renderer,
		Logger:      a.logger,
		AccessToken: a.cfg.AccessToken,
	})
}

func logRenderer(logger *zap.Logger) render.Renderer {
	return render.NewLogRenderer(logger)
}

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, logRenderer)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return a.newServer(render.NewLogRenderer(a.logger)).ServeStdio(ctx, os.Stdin, os.Stdout)
		},
	}
}

func newNetworkCmd(transport, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   transport,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, logRenderer)
			if err != nil {
				return err
			}
			defer a.close()
			if a.cfg.AccessToken == "" {
				a.logger.Warn("mcp_access_token not set; HTTP endpoints are unauthenticated")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			// stdout is free on network transports, so lifecycle lines go there too.
			renderer := render.Multi{render.NewLogRenderer(a.logger), render.NewStdoutRenderer(cmd.OutOrStdout(), a.cfg.Verbose, false)}
			defer func() { _ = renderer.Close() }()
			return a.newServer(renderer).ListenAndServe(ctx, transport, a.cfg.Addr())
		},
	}
	cmd.Flags().String("host", config.DefaultHost, "Listen host")
	cmd.Flags().Int("port", config.DefaultPort, "Listen port")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var ready bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print liveness (or readiness with --ready) as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.close()

			if !ready {
				return writeJSON(cmd.OutOrStdout(), a.service.SelfHealth())
			}
			report := a.service.Ready(cmd.Context(), upstream.NewRequestID(), "")
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("upstream %s: %s", report.Status, report.Summary)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "Probe the upstream API health endpoint")
	return cmd
}

func newCallCmd() *cobra.Command {
	var (
		argsJSON string
		asJSON   bool
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool locally and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			out := cmd.OutOrStdout()
			var renderer func(*zap.Logger) render.Renderer
			if !asJSON {
				renderer = func(*zap.Logger) render.Renderer {
					return render.NewStdoutRenderer(out, verbose, quiet)
				}
			}
			a, err := newApp(cmd, renderer)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var input json.RawMessage
			if strings.TrimSpace(argsJSON) != "" {
				input = json.RawMessage(argsJSON)
			}
			res, record, err := a.dispatcher.Call(ctx, args[0], input, tools.Meta{})
			a.logger.Debug("tool_call_record", zap.Any("record", record))
			if err != nil {
				if errors.Is(err, tools.ErrUnknownTool) {
					return fmt.Errorf("%w (available: %s)", err, strings.Join(a.registry.Names(), ", "))
				}
				return err
			}
			if asJSON {
				if err := writeJSON(out, res.Payload); err != nil {
					return err
				}
			}
			if res.Failed {
				return fmt.Errorf("%s failed: %s", args[0], res.Summary)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw tool payload as JSON")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Print only the result summary")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.close()
			for _, tool := range a.registry.Tools() {
				desc, _, _ := strings.Cut(tool.Description(), "\n")
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", tool.Name(), desc)
			}
			return nil
		},
	}
}

func newSupervisorCmd() *cobra.Command {
	var (
		opts   supervisor.Options
		format string
	)
	cmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Print a PM2 ecosystem descriptor for running the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := supervisor.Build(opts)
			if err != nil {
				return err
			}
			return supervisor.Render(cmd.OutOrStdout(), supervisor.Ecosystem{Apps: []supervisor.Descriptor{d}}, format)
		},
	}
	cmd.Flags().StringVar(&opts.Mode, "mode", supervisor.ModeHTTP, "Transport the supervised process serves (http or sse)")
	cmd.Flags().StringVar(&format, "format", supervisor.FormatJS, "Output format (js, json or yaml)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "App name")
	cmd.Flags().StringVar(&opts.Cwd, "cwd", supervisor.DefaultCwd, "Working directory")
	cmd.Flags().StringVar(&opts.Script, "script", supervisor.DefaultScript, "Executable to launch")
	cmd.Flags().StringVar(&opts.Command, "command", supervisor.DefaultCommand, "Arguments preceding the transport name")
	cmd.Flags().StringVar(&opts.Host, "host", supervisor.DefaultHost, "Listen host")
	cmd.Flags().IntVar(&opts.Port, "port", supervisor.DefaultPort, "Listen port")
	cmd.Flags().StringVar(&opts.LogDir, "log-dir", supervisor.DefaultLogDir, "Directory for out.log and err.log")
	return cmd
}

// buildLogger logs to stderr so stdout stays free for the stdio transport.
func buildLogger(verbose bool, level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if lvl, err := zapcore.ParseLevel(level); err == nil && (!verbose || level != config.DefaultLogLevel) {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
