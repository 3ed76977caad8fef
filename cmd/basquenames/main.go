// Command basquenames runs the BasqueName cache-aside workload and talks to
// cache servers directly for debugging.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cachemir/cacheaside/internal/app"
	"github.com/cachemir/cacheaside/internal/logging"
	"github.com/cachemir/cacheaside/pkg/client"
	"github.com/cachemir/cacheaside/pkg/config"
	"github.com/cachemir/cacheaside/pkg/protocol"
	"github.com/cachemir/cacheaside/pkg/record"
)

var commonFlags = map[string]string{
	"client.nodes": "nodes",
	"log.level":    "log-level",
	"log.format":   "log-format",
}

var runFlags = map[string]string{
	"workload.backend":         "backend",
	"workload.store":           "store",
	"workload.sqlite_path":     "sqlite-path",
	"workload.region":          "region",
	"workload.capacity":        "capacity",
	"workload.entry_ttl":       "entry-ttl",
	"workload.find_interval":   "find-interval",
	"workload.create_interval": "create-interval",
	"workload.remove_interval": "remove-interval",
	"workload.size_interval":   "size-interval",
	"workload.clear_cache":     "clear-cache",
	"workload.metrics_addr":    "metrics-addr",
	"redis.addr":               "redis-addr",
	"redis.password":           "redis-password",
	"redis.db":                 "redis-db",
}

func newRootCmd() *cobra.Command {
	v := config.New()
	d := config.Default()

	root := &cobra.Command{
		Use:           "basquenames",
		Short:         "BasqueName cache-aside workload",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringSlice("nodes", d.Client.Nodes, "Cache server addresses")
	pf.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	pf.String("log-format", d.Log.Format, "Log format (json, console)")

	root.AddCommand(newRunCmd(v, d), newExecCmd(v))
	return root
}

func load(v *viper.Viper, cmd *cobra.Command, keys ...map[string]string) (*config.Config, *zap.Logger, error) {
	for _, k := range keys {
		if err := config.BindFlags(v, cmd.Flags(), k); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRunCmd(v *viper.Viper, d *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the repository with periodic random lookups, creations and removals",
		Long: `Look up random BasqueNames through the cache, and with a mutable store also
create and remove them, logging cache and store sizes until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(v, cmd, commonFlags, runFlags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("close failed", zap.Error(err))
				}
			}()

			logger.Info("workload configured",
				zap.String("backend", cfg.Workload.Backend),
				zap.String("store", cfg.Workload.Store),
				zap.String("region", cfg.Workload.Region))
			return a.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.String("backend", d.Workload.Backend, "Cache backend (embedded, cachemir, redis)")
	f.String("store", d.Workload.Store, "Authoritative store (fixed, memory, sqlite)")
	f.String("sqlite-path", d.Workload.SQLitePath, "SQLite database path for the sqlite store")
	f.String("region", d.Workload.Region, "Cache region name")
	f.Int("capacity", d.Workload.Capacity, "Embedded region capacity, 0 for unbounded")
	f.Duration("entry-ttl", d.Workload.EntryTTL, "Cache entry time to live, 0 for none; not supported by the redis backend")
	f.Duration("find-interval", d.Workload.FindInterval, "Delay between lookups, 0 for the default, negative to disable")
	f.Duration("create-interval", d.Workload.CreateInterval, "Delay between creations, 0 for the default, negative to disable")
	f.Duration("remove-interval", d.Workload.RemoveInterval, "Delay between removals, 0 for the default, negative to disable")
	f.Duration("size-interval", d.Workload.SizeInterval, "Delay between size reports, 0 for the default, negative to disable")
	f.Bool("clear-cache", d.Workload.ClearCache, "Empty a remote cache region before starting")
	f.String("metrics-addr", d.Workload.MetricsAddr, "Serve Prometheus metrics on this address")
	f.String("redis-addr", d.Redis.Addr, "Redis address for the redis backend")
	f.String("redis-password", d.Redis.Password, "Redis password")
	f.Int("redis-db", d.Redis.DB, "Redis database")
	return cmd
}

func newExecCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   `exec "<command>"`,
		Short: "Send one text command to the cache servers",
		Long: `Send one command to the node owning its key and print the response.

Commands:
  GET <region> <key>
  PUT <region> <key> <value> [ttl-seconds]
  REMOVE <region> <key>
  TTL <region> <key>
  SIZE <region>
  CLEAR <region>
  REGIONS
  PING`,
		Example: `  basquenames exec "GET basque-names 0"
  basquenames --nodes localhost:8080,localhost:8081 exec "SIZE basque-names"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(v, cmd, commonFlags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			pc, err := protocol.ParseTextCommand(strings.Join(args, " "))
			if err != nil {
				return err
			}

			c, err := client.NewWithConfig(&cfg.Client, client.WithLogger(logger))
			if err != nil {
				return err
			}
			defer c.Close()

			return execute(cmd.Context(), c, pc, cmd.OutOrStdout())
		},
	}
}

func execute(ctx context.Context, c *client.Client, pc *protocol.Command, out io.Writer) error {
	switch pc.Type {
	case protocol.CmdSize, protocol.CmdClear:
		var n int64
		var err error
		if pc.Type == protocol.CmdSize {
			n, err = c.Size(ctx, pc.Region)
		} else {
			n, err = c.Clear(ctx, pc.Region)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "(integer) %d\n", n)
		return err
	case protocol.CmdRegions:
		regions, err := c.Regions(ctx)
		if err != nil {
			return err
		}
		for i, r := range regions {
			if _, err := fmt.Fprintf(out, "%d) %s\n", i+1, r); err != nil {
				return err
			}
		}
		return nil
	case protocol.CmdPing:
		if err := c.Ping(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "PONG")
		return err
	}

	resp, err := c.Do(ctx, pc)
	if err != nil {
		return err
	}
	return printResponse(out, resp)
}

func printResponse(out io.Writer, resp *protocol.Response) error {
	var err error
	switch resp.Type {
	case protocol.RespOK:
		_, err = fmt.Fprintln(out, "OK")
	case protocol.RespNil:
		_, err = fmt.Fprintln(out, "(nil)")
	case protocol.RespInt:
		_, err = fmt.Fprintf(out, "(integer) %d\n", resp.Data)
	case protocol.RespBytes:
		data, _ := resp.Data.([]byte)
		if rec, decodeErr := record.Unmarshal(data); decodeErr == nil && rec.Name != "" {
			_, err = fmt.Fprintln(out, rec)
		} else {
			_, err = fmt.Fprintf(out, "%q\n", data)
		}
	case protocol.RespArray:
		items, _ := resp.Data.([]string)
		for i, item := range items {
			if _, err = fmt.Fprintf(out, "%d) %s\n", i+1, item); err != nil {
				return err
			}
		}
	case protocol.RespUnknownRegion:
		return fmt.Errorf("%w: %s", client.ErrUnknownRegion, resp.Error)
	default:
		return fmt.Errorf("%w: %s", client.ErrServer, resp.Error)
	}
	return err
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
