package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/radbridge/internal/config"
	"github.com/harun/radbridge/internal/logger"
	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/pkg/bridge"
	"github.com/harun/radbridge/pkg/eventbus"
	"github.com/harun/radbridge/pkg/gateway"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the radbridge gateway",
	Long: `Run the radbridge gateway in the foreground.
Front-ends connect over WebSocket or POST /rpc and call agent.init to start
an agent. With agent.enabled set, an agent is started before the gateway
accepts connections.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pidFile := pidFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("radbridge is already running (PID file: %s)", pidFile)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zl := log.Zerolog()

	if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
		zl.Warn().Err(err).Str("path", cfg.Logging.AuditFile).Msg("Audit log unavailable, using stderr")
	}
	defer observability.GetAuditLogger().Close()
	observability.EnsureRegistered()

	bus := eventbus.New(log.Component("eventbus"))
	defer bus.Close()

	service, err := bridge.NewService(bridge.ServiceConfig{
		Notifier: bus,
		Sink:     bus,
		Supervisor: bridge.SupervisorConfig{
			Host:         cfg.Supervisor.Host,
			PollInterval: cfg.Supervisor.PollInterval,
			MaxAttempts:  cfg.Supervisor.MaxAttempts,
			ProbeTimeout: cfg.Supervisor.ProbeTimeout,
		},
		ToolTimeout: cfg.Tools.InvocationTimeout,
		ChatTimeout: cfg.Tools.ChatTimeout,
		Logger:      log.Zerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	server, err := gateway.NewServer(gateway.Config{
		Addr:              cfg.Gateway.Addr(),
		SharedSecret:      cfg.Gateway.SharedSecret,
		TickInterval:      cfg.Gateway.TickInterval,
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		MaxConcurrent:     cfg.Gateway.MaxConcurrent,
		Service:           service,
		Bus:               bus,
		Logger:            log.Component("gateway"),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			zl.Warn().Err(err).Msg("Agent did not stop cleanly")
		}
	}()

	if cfg.Agent.Enabled {
		if err := bootstrapAgent(ctx, cmd.OutOrStdout(), service, cfg.Agent); err != nil {
			server.Close()
			return err
		}
	}

	if err := writePIDFile(pidFile); err != nil {
		server.Close()
		return err
	}
	defer os.Remove(pidFile)

	zl.Info().
		Str("version", version).
		Str("addr", cfg.Gateway.Addr()).
		Int("pid", os.Getpid()).
		Msg("radbridge started")

	return server.Serve(ctx)
}

func bootstrapAgent(ctx context.Context, out io.Writer, service *bridge.Service, agent config.AgentConfig) error {
	card, err := service.InitAgent(ctx, bridge.InitRequest{
		Name:         agent.Name,
		Description:  agent.Description,
		Model:        agent.Model,
		SystemPrompt: agent.SystemPrompt,
		MaxSteps:     agent.MaxSteps,
	})
	if err != nil {
		return fmt.Errorf("failed to start configured agent: %w", err)
	}
	fmt.Fprintf(out, "Agent %s ready at %s\n", card.Name, card.URL)
	return nil
}
