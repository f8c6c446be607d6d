package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/partyroom/internal/api"
	"github.com/mcoot/partyroom/internal/config"
	"github.com/mcoot/partyroom/internal/factory"
)

type flags struct {
	configPath string
	role       string
	nodeID     string
	port       int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "partyroom-server",
		Short: "Run a partyroom process",
		Long: `Run one partyroom process. The role decides what it serves:

  player   player session partitions
  room     room membership partitions and the inactivity sweep
  gateway  the public API, forwarding to player and room processes
  all      everything in one process`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", os.Getenv("PARTYROOM_CONFIG"), "Config file (env: PARTYROOM_CONFIG)")
	cmd.Flags().StringVar(&f.role, "role", "", "Override node.role")
	cmd.Flags().StringVar(&f.nodeID, "node-id", "", "Override node.id")
	cmd.Flags().IntVar(&f.port, "port", 0, "Override server.port")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check a config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(f); err != nil {
				return err
			}
			cmd.Println("config ok")
			return nil
		},
	})

	return cmd
}

func loadConfig(f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}

	if f.role != "" {
		cfg.Node.Role = f.role
	}
	if f.nodeID != "" {
		cfg.Node.ID = f.nodeID
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.LevelVar
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: &lvl,
	}))
}

func run(ctx context.Context, cfg *config.Config) error {
	// Set up logging with JSON output
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create application factory
	app, err := factory.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}

	// Create server
	server := api.NewServer(app.Handler, api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	if err := server.Listen(); err != nil {
		_ = app.Stop(context.Background())
		return err
	}

	// Start server in goroutine; it answers NotReady until app.Start finishes
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	endpoint := advertiseAddr(cfg.Server.AdvertiseAddr, server.Addr())
	if err := app.Start(ctx, endpoint); err != nil {
		logger.Error("failed to start node", slog.String("error", err.Error()))
		_ = server.Shutdown(context.Background())
		_ = app.Stop(context.Background())
		return err
	}

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("endpoint", endpoint),
		slog.String("role", cfg.Node.Role),
	)

	// Wait for shutdown or error
	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("server error", slog.String("error", runErr.Error()))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		logger.Error("stop error", slog.String("error", err.Error()))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return runErr
}

// advertiseAddr is the address other processes reach this one at. An
// unspecified bind host is replaced with the machine's hostname.
func advertiseAddr(configured, bound string) string {
	if configured != "" {
		return configured
	}

	host, port, err := net.SplitHostPort(bound)
	if err != nil {
		return bound
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		name, err := os.Hostname()
		if err != nil {
			name = "localhost"
		}
		return net.JoinHostPort(name, port)
	}
	return net.JoinHostPort(host, port)
}
