// Package remote provides cache regions hosted on a cachemir cluster.
//
// Records cross the wire as protobuf BasqueName messages under decimal id
// keys. The BasqueName schema is registered in the cluster's metadata region
// while the provider is built, so a provider that exists is always usable for
// data operations. Every data call passes through a circuit breaker: once the
// cluster has failed often enough, calls fail fast with a NetworkError until
// the breaker lets a probe through.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cachemir/cacheaside/pkg/backend"
	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/client"
	"github.com/cachemir/cacheaside/pkg/config"
	"github.com/cachemir/cacheaside/pkg/record"
	"github.com/cachemir/cacheaside/pkg/schema"
)

// Options configures the remote provider.
type Options struct {
	Schema          schema.Descriptor // Defaults to the BasqueName schema
	TTL             time.Duration     // Entry time to live; 0 means entries never expire
	BreakerFailures uint32            // Consecutive network failures that open the breaker
	BreakerTimeout  time.Duration     // How long an open breaker rejects calls
	Logger          *zap.Logger
}

// Provider hands out regions on a cachemir cluster.
type Provider struct {
	client  *client.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	ttl     time.Duration
}

var _ backend.Provider = (*Provider)(nil)

// New registers the schema with the cluster reachable through c and returns
// a provider on success. The provider takes ownership of c; on failure c is
// left to the caller.
//
// Any registration failure, including an unreachable cluster, is returned as
// a ConfigurationError and no provider is built.
func New(ctx context.Context, c *client.Client, opts Options) (*Provider, error) {
	if c == nil {
		return nil, cacheerr.Configuration("remote cache: nil client")
	}
	if opts.Schema.FileName == "" {
		opts.Schema = schema.BasqueNames()
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = config.DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = config.DefaultBreakerTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	p := &Provider{client: c, logger: opts.Logger, ttl: opts.TTL}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cachemir",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			p.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !cacheerr.IsNetwork(err)
		},
	})

	if err := schema.Register(ctx, metadataRegion{client: c}, opts.Schema); err != nil {
		return nil, err
	}
	p.logger.Info("schema registered",
		zap.String("file", opts.Schema.FileName),
		zap.String("region", schema.MetadataRegionName))

	return p, nil
}

// GetCache verifies the cluster hosts name and returns a handle to it.
// A region the cluster does not host, or a cluster that cannot be asked, is a
// ConfigurationError.
func (p *Provider) GetCache(ctx context.Context, name string) (backend.Region, error) {
	_, err := p.client.Size(ctx, name)
	switch {
	case errors.Is(err, client.ErrUnknownRegion):
		return nil, cacheerr.WrapConfiguration(err, "remote cache %q is not hosted by the cluster", name)
	case err != nil:
		return nil, cacheerr.WrapConfiguration(err, "remote cache %q could not be verified", name)
	}
	return &region{provider: p, name: name}, nil
}

// Close releases the client's connections.
func (p *Provider) Close() error {
	return p.client.Close()
}

// State reports the breaker state, for diagnostics.
func (p *Provider) State() gobreaker.State {
	return p.breaker.State()
}

// call runs fn through the breaker. An open breaker is a NetworkError, and a
// region that disappeared from the cluster is a ConfigurationError.
func (p *Provider) call(op, regionName string, fn func() (interface{}, error)) (interface{}, error) {
	out, err := p.breaker.Execute(fn)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, cacheerr.Network(err, "remote cache %q: %s rejected", regionName, op)
	case errors.Is(err, client.ErrUnknownRegion):
		return nil, cacheerr.WrapConfiguration(err, "remote cache %q: %s", regionName, op)
	default:
		return nil, err
	}
}

type region struct {
	provider *Provider
	name     string
}

func (r *region) Name() string { return r.name }

func (r *region) Get(ctx context.Context, id int) (record.Record, bool, error) {
	out, err := r.provider.call("get", r.name, func() (interface{}, error) {
		data, found, err := r.provider.client.Get(ctx, r.name, backend.Key(id))
		if err != nil || !found {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return record.Record{}, false, err
	}
	data, ok := out.([]byte)
	if !ok {
		return record.Record{}, false, nil
	}

	rec, err := backend.Decode(r.name, id, data)
	if err != nil {
		return record.Record{}, false, err
	}
	return rec, true, nil
}

func (r *region) Put(ctx context.Context, rec record.Record) error {
	_, err := r.provider.call("put", r.name, func() (interface{}, error) {
		return nil, r.provider.client.Put(ctx, r.name, backend.Key(rec.ID), record.Marshal(rec), r.provider.ttl)
	})
	return err
}

func (r *region) Remove(ctx context.Context, id int) error {
	_, err := r.provider.call("remove", r.name, func() (interface{}, error) {
		_, err := r.provider.client.Remove(ctx, r.name, backend.Key(id))
		return nil, err
	})
	return err
}

func (r *region) Size(ctx context.Context) (int, error) {
	out, err := r.provider.call("size", r.name, func() (interface{}, error) {
		return r.provider.client.Size(ctx, r.name)
	})
	if err != nil {
		return 0, err
	}
	n, _ := out.(int64)
	return int(n), nil
}

// metadataRegion adapts the cluster's metadata region for schema registration.
type metadataRegion struct {
	client *client.Client
}

func (m metadataRegion) PutMetadata(ctx context.Context, key, value string) error {
	return m.client.Put(ctx, schema.MetadataRegionName, key, []byte(value), 0)
}

func (m metadataRegion) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	data, found, err := m.client.Get(ctx, schema.MetadataRegionName, key)
	if err != nil || !found {
		return "", found, err
	}
	return string(data), true, nil
}
