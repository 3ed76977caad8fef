// Package redisremote provides cache regions stored in Redis.
//
// Each region is one Redis hash, cacheaside:region:<name>, whose fields are
// decimal record ids and whose values are protobuf BasqueName messages. Schema
// files live in the hash named after the metadata region. Redis has no notion
// of declared regions, so the provider only serves the names it was built with.
package redisremote

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cachemir/cacheaside/pkg/backend"
	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
	"github.com/cachemir/cacheaside/pkg/schema"
)

// KeyPrefix prefixes the hash key of every region.
const KeyPrefix = "cacheaside:region:"

// Options configures the redis provider. Entries never expire: a region is a
// single hash and its fields carry no TTL of their own.
type Options struct {
	Regions []string          // Region names to serve
	Schema  schema.Descriptor // Defaults to the BasqueName schema
	Logger  *zap.Logger
}

// Provider hands out regions stored as Redis hashes.
type Provider struct {
	rdb     redis.UniversalClient
	regions map[string]bool
	logger  *zap.Logger
}

var _ backend.Provider = (*Provider)(nil)

// RegionKey is the hash key holding region name.
func RegionKey(name string) string {
	return KeyPrefix + name
}

// New registers the schema in Redis and returns a provider on success. The
// provider takes ownership of rdb; on failure rdb is left to the caller.
func New(ctx context.Context, rdb redis.UniversalClient, opts Options) (*Provider, error) {
	if rdb == nil {
		return nil, cacheerr.Configuration("redis cache: nil client")
	}
	if opts.Schema.FileName == "" {
		opts.Schema = schema.BasqueNames()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	p := &Provider{rdb: rdb, regions: make(map[string]bool, len(opts.Regions)), logger: opts.Logger}
	for _, name := range opts.Regions {
		p.regions[name] = true
	}

	if err := schema.Register(ctx, metadataRegion{rdb: rdb}, opts.Schema); err != nil {
		return nil, err
	}
	p.logger.Info("schema registered",
		zap.String("file", opts.Schema.FileName),
		zap.String("region", schema.MetadataRegionName))

	return p, nil
}

// GetCache returns the named region if the provider was built with it.
func (p *Provider) GetCache(_ context.Context, name string) (backend.Region, error) {
	if !p.regions[name] {
		return nil, cacheerr.Configuration("redis cache %q is not configured", name)
	}
	return &region{rdb: p.rdb, name: name, key: RegionKey(name)}, nil
}

// Close closes the Redis client.
func (p *Provider) Close() error {
	return p.rdb.Close()
}

type region struct {
	rdb  redis.UniversalClient
	name string
	key  string
}

func (r *region) Name() string { return r.name }

func (r *region) Get(ctx context.Context, id int) (record.Record, bool, error) {
	data, err := r.rdb.HGet(ctx, r.key, backend.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, cacheerr.Network(err, "redis cache %q: get %d", r.name, id)
	}

	rec, err := backend.Decode(r.name, id, data)
	if err != nil {
		return record.Record{}, false, err
	}
	return rec, true, nil
}

func (r *region) Put(ctx context.Context, rec record.Record) error {
	err := r.rdb.HSet(ctx, r.key, backend.Key(rec.ID), record.Marshal(rec)).Err()
	return cacheerr.Network(err, "redis cache %q: put %d", r.name, rec.ID)
}

func (r *region) Remove(ctx context.Context, id int) error {
	err := r.rdb.HDel(ctx, r.key, backend.Key(id)).Err()
	return cacheerr.Network(err, "redis cache %q: remove %d", r.name, id)
}

func (r *region) Size(ctx context.Context) (int, error) {
	n, err := r.rdb.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, cacheerr.Network(err, "redis cache %q: size", r.name)
	}
	return int(n), nil
}

type metadataRegion struct {
	rdb redis.UniversalClient
}

func (m metadataRegion) PutMetadata(ctx context.Context, key, value string) error {
	err := m.rdb.HSet(ctx, schema.MetadataRegionName, key, value).Err()
	return cacheerr.Network(err, "redis metadata: put %s", key)
}

func (m metadataRegion) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	value, err := m.rdb.HGet(ctx, schema.MetadataRegionName, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, cacheerr.Network(err, "redis metadata: get %s", key)
	}
	return value, true, nil
}

// Flush deletes the region hash.
func (p *Provider) Flush(ctx context.Context, name string) error {
	err := p.rdb.Del(ctx, RegionKey(name)).Err()
	return cacheerr.Network(err, "redis cache %q: flush", name)
}
