// Command server runs one node of the region cache cluster.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cachemir/cacheaside/internal/logging"
	"github.com/cachemir/cacheaside/internal/server"
	"github.com/cachemir/cacheaside/pkg/config"
)

var serverFlags = map[string]string{
	"server.host":             "host",
	"server.port":             "port",
	"server.regions":          "regions",
	"server.max_conns":        "max-conns",
	"server.read_timeout":     "read-timeout",
	"server.write_timeout":    "write-timeout",
	"server.cleanup_interval": "cleanup-interval",
	"log.level":               "log-level",
	"log.format":              "log-format",
}

func newRootCmd() *cobra.Command {
	v := config.New()
	d := config.Default()

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Run a cache server node",
		Long:          `Serve named cache regions, plus the schema metadata region, over the binary protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindFlags(v, cmd.Flags(), serverFlags); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return serve(&cfg.Server, logger)
		},
	}

	f := cmd.Flags()
	f.String("host", d.Server.Host, "Host to bind to")
	f.Int("port", d.Server.Port, "Port to listen on")
	f.StringSlice("regions", d.Server.Regions, "Regions to host")
	f.Int("max-conns", d.Server.MaxConns, "Maximum concurrent connections")
	f.Duration("read-timeout", d.Server.ReadTimeout, "Connection read timeout")
	f.Duration("write-timeout", d.Server.WriteTimeout, "Connection write timeout")
	f.Duration("cleanup-interval", d.Server.CleanupInterval, "Expired entry purge interval")
	f.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	f.String("log-format", d.Log.Format, "Log format (json, console)")

	return cmd
}

func serve(cfg *config.ServerConfig, logger *zap.Logger) error {
	srv := server.New(cfg, logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	if err := srv.Stop(); err != nil {
		logger.Error("error stopping server", zap.Error(err))
		return err
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
