// Package embedded provides in-process cache regions.
//
// Records are stored as values, never serialized, and no operation can fail.
// Regions are declared up front; asking for any other name is a configuration
// error. With a positive Capacity each region is a bounded LRU that evicts its
// least recently used entry when full; otherwise regions live on the shared
// region engine and only expire by TTL.
package embedded

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cachemir/cacheaside/pkg/backend"
	"github.com/cachemir/cacheaside/pkg/cache"
	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
)

// Options configures the embedded provider.
type Options struct {
	Regions         []string      // Region names to host
	Capacity        int           // Max entries per region; 0 means unbounded
	TTL             time.Duration // Entry time to live; 0 means entries never expire
	CleanupInterval time.Duration // Expired-entry purge period of unbounded regions
}

// Provider hosts embedded regions.
type Provider struct {
	engine  *cache.Cache
	regions map[string]backend.Region
}

var _ backend.Provider = (*Provider)(nil)

// New builds a provider hosting opts.Regions.
func New(opts Options) *Provider {
	p := &Provider{regions: make(map[string]backend.Region, len(opts.Regions))}

	if opts.Capacity > 0 {
		for _, name := range opts.Regions {
			p.regions[name] = &lruRegion{
				name: name,
				data: expirable.NewLRU[int, record.Record](opts.Capacity, nil, opts.TTL),
			}
		}
		return p
	}

	p.engine = cache.New(opts.CleanupInterval, opts.Regions...)
	for _, name := range opts.Regions {
		r, _ := p.engine.Region(name)
		p.regions[name] = &engineRegion{region: r, ttl: opts.TTL}
	}
	return p
}

// GetCache returns the named region or a ConfigurationError.
func (p *Provider) GetCache(_ context.Context, name string) (backend.Region, error) {
	r, ok := p.regions[name]
	if !ok {
		return nil, cacheerr.Configuration("embedded cache %q is not configured", name)
	}
	return r, nil
}

// Close stops background expiration.
func (p *Provider) Close() error {
	if p.engine != nil {
		p.engine.Close()
	}
	return nil
}

type engineRegion struct {
	region *cache.Region
	ttl    time.Duration
}

func (r *engineRegion) Name() string { return r.region.Name() }

func (r *engineRegion) Get(_ context.Context, id int) (record.Record, bool, error) {
	v, ok := r.region.Get(backend.Key(id))
	if !ok {
		return record.Record{}, false, nil
	}
	rec, ok := v.(record.Record)
	return rec, ok, nil
}

func (r *engineRegion) Put(_ context.Context, rec record.Record) error {
	r.region.Set(backend.Key(rec.ID), rec, r.ttl)
	return nil
}

func (r *engineRegion) Remove(_ context.Context, id int) error {
	r.region.Del(backend.Key(id))
	return nil
}

func (r *engineRegion) Size(_ context.Context) (int, error) {
	return r.region.Len(), nil
}

type lruRegion struct {
	data *expirable.LRU[int, record.Record]
	name string
}

func (r *lruRegion) Name() string { return r.name }

func (r *lruRegion) Get(_ context.Context, id int) (record.Record, bool, error) {
	rec, ok := r.data.Get(id)
	return rec, ok, nil
}

func (r *lruRegion) Put(_ context.Context, rec record.Record) error {
	r.data.Add(rec.ID, rec)
	return nil
}

func (r *lruRegion) Remove(_ context.Context, id int) error {
	r.data.Remove(id)
	return nil
}

func (r *lruRegion) Size(_ context.Context) (int, error) {
	return r.data.Len(), nil
}
