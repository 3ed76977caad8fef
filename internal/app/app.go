// Package app assembles the BasqueName workload from a Config: the
// authoritative store, the cache provider for the selected backend, the
// cache-aside repository on top of both and the driver that exercises it.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cachemir/cacheaside/internal/workload"
	"github.com/cachemir/cacheaside/pkg/backend"
	"github.com/cachemir/cacheaside/pkg/backend/embedded"
	"github.com/cachemir/cacheaside/pkg/backend/redisremote"
	"github.com/cachemir/cacheaside/pkg/backend/remote"
	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/client"
	"github.com/cachemir/cacheaside/pkg/config"
	"github.com/cachemir/cacheaside/pkg/record"
	"github.com/cachemir/cacheaside/pkg/repository"
	"github.com/cachemir/cacheaside/pkg/store"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "cacheaside"

// App is a wired workload. Close releases everything Build opened.
type App struct {
	Repository *repository.Repository
	Driver     *workload.Driver
	Metrics    *repository.Metrics

	cfg     *config.Config
	logger  *zap.Logger
	closers []func() error
}

// Build wires the workload described by cfg. Anything opened before a failure
// is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, cacheerr.Configuration("app: nil configuration")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, Metrics: repository.NewMetrics(MetricsNamespace)}

	st, err := a.provideStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	provider, reset, err := a.provideCache(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, provider.Close)

	repo, err := repository.New(ctx, provider, cfg.Workload.Region, st,
		repository.WithLogger(logger.Named("repository")),
		repository.WithMetrics(a.Metrics))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Repository = repo

	if cfg.Workload.ClearCache && reset != nil {
		if err := reset(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
		logger.Info("cache region cleared", zap.String("region", cfg.Workload.Region))
	}

	defaults := workload.EmbeddedIntervals()
	if repo.Mutable() || cfg.Workload.Backend != config.BackendEmbedded {
		defaults = workload.RemoteIntervals()
	}
	a.Driver = &workload.Driver{
		Repository: repo,
		IDs:        workload.RandomIDs(),
		Names:      record.Names(),
		Intervals: workload.Intervals{
			Find:   cfg.Workload.FindInterval,
			Create: cfg.Workload.CreateInterval,
			Remove: cfg.Workload.RemoveInterval,
			Size:   cfg.Workload.SizeInterval,
		}.Or(defaults),
		Mutable: repo.Mutable(),
		Logger:  logger.Named("workload"),
	}
	return a, nil
}

func (a *App) provideStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.Workload.Store {
	case config.StoreFixed:
		return store.NewFixed(), nil
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQLite:
		s, err := store.OpenSQLite(ctx, a.cfg.Workload.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, cacheerr.Configuration("unknown store %q", a.cfg.Workload.Store)
	}
}

// provideCache builds the provider for the configured backend, and for remote
// backends a function emptying the workload region.
func (a *App) provideCache(ctx context.Context) (backend.Provider, func(context.Context) error, error) {
	w := a.cfg.Workload
	switch w.Backend {
	case config.BackendEmbedded:
		return embedded.New(embedded.Options{
			Regions:         []string{w.Region},
			Capacity:        w.Capacity,
			TTL:             w.EntryTTL,
			CleanupInterval: a.cfg.Server.CleanupInterval,
		}), nil, nil

	case config.BackendCachemir:
		c, err := client.NewWithConfig(&a.cfg.Client, client.WithLogger(a.logger.Named("client")))
		if err != nil {
			return nil, nil, err
		}
		p, err := remote.New(ctx, c, remote.Options{
			TTL:             w.EntryTTL,
			BreakerFailures: a.cfg.Client.BreakerFailures,
			BreakerTimeout:  a.cfg.Client.BreakerTimeout,
			Logger:          a.logger.Named("remote"),
		})
		if err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		reset := func(ctx context.Context) error {
			_, err := c.Clear(ctx, w.Region)
			return err
		}
		return p, reset, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		p, err := redisremote.New(ctx, rdb, redisremote.Options{
			Regions: []string{w.Region},
			Logger:  a.logger.Named("redis"),
		})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		reset := func(ctx context.Context) error {
			return p.Flush(ctx, w.Region)
		}
		return p, reset, nil

	default:
		return nil, nil, cacheerr.Configuration("unknown backend %q", w.Backend)
	}
}

// Run serves metrics when an address is configured and runs the driver until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Workload.MetricsAddr
	if addr == "" {
		return a.Driver.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.logger.Info("serving metrics", zap.String("addr", addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return a.Driver.Run(ctx)
}

// Close releases the cache provider and the store in reverse opening order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
