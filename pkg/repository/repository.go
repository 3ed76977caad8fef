// Package repository implements the cache-aside BasqueName repository.
//
// Reads go through the cache region: a hit is returned as is, a miss is
// computed from the authoritative store and written to the region. Writes go
// to the store and only ever invalidate the region, never populate it.
//
// Operations on the same id are serialized by a striped lock, so a removal
// and a concurrent lookup cannot interleave into evict-then-stale-repopulate.
// Sample takes every stripe to read store and cache sizes as one consistent
// pair.
package repository

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cachemir/cacheaside/pkg/backend"
	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
	"github.com/cachemir/cacheaside/pkg/store"
)

const stripes = 32

// Repository is a cache-aside view over an authoritative store.
type Repository struct {
	region  backend.Region
	store   store.Store
	mutable store.Mutable // nil when the store is read-only
	logger  *zap.Logger
	metrics *Metrics
	locks   [stripes]sync.Mutex
}

// Sample is a consistent reading of store and cache sizes.
type Sample struct {
	StoreSize int
	CacheSize int
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the repository logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records repository activity in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// New obtains the named region from provider and builds a repository over
// it and st. A missing provider, store or region is a ConfigurationError.
// Create and RemoveByID are only allowed when st is a store.Mutable.
func New(ctx context.Context, provider backend.Provider, regionName string, st store.Store, opts ...Option) (*Repository, error) {
	if provider == nil {
		return nil, cacheerr.Configuration("repository: nil cache provider")
	}
	if st == nil {
		return nil, cacheerr.Configuration("repository: nil store")
	}

	region, err := provider.GetCache(ctx, regionName)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, cacheerr.Configuration("cache %q is not available", regionName)
	}

	r := &Repository{region: region, store: st, logger: zap.NewNop()}
	if m, ok := st.(store.Mutable); ok {
		r.mutable = m
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Mutable reports whether Create and RemoveByID are allowed.
func (r *Repository) Mutable() bool {
	return r.mutable != nil
}

func (r *Repository) lock(id int) func() {
	idx := id % stripes
	if idx < 0 {
		idx += stripes
	}
	mu := &r.locks[idx]
	mu.Lock()
	return mu.Unlock
}

// FindByID returns the record for id, computing and caching it on a miss.
//
// A read-only store reports ids outside its table, and a mutable store ids it
// does not hold, as NotFoundError. Cache and store errors are returned as is.
func (r *Repository) FindByID(ctx context.Context, id int) (record.Record, error) {
	defer r.lock(id)()

	rec, found, err := r.region.Get(ctx, id)
	if err != nil {
		return record.Record{}, r.fail("find", fmt.Errorf("find %d: cache get: %w", id, err))
	}
	if found {
		r.count(func(m *Metrics) { m.Hits.Inc() })
		r.logger.Debug("cache hit", zap.Int("id", id), zap.String("region", r.region.Name()))
		return rec, nil
	}
	r.count(func(m *Metrics) { m.Misses.Inc() })

	rec, err = r.store.Lookup(ctx, id)
	if err != nil {
		return record.Record{}, r.fail("find", fmt.Errorf("find %d: %w", id, err))
	}
	r.count(func(m *Metrics) { m.Loads.Inc() })

	if err := r.region.Put(ctx, rec); err != nil {
		return record.Record{}, r.fail("find", fmt.Errorf("find %d: cache put: %w", id, err))
	}
	r.logger.Debug("cache miss, loaded from store", zap.Int("id", id), zap.String("name", rec.Name))
	return rec, nil
}

// Create stores {id, name}, replacing any record under id. It never writes
// to the cache. Replacing a record with a different name evicts the cached
// copy first; if that eviction fails the store is left untouched.
func (r *Repository) Create(ctx context.Context, id int, name string) error {
	if r.mutable == nil {
		return r.fail("create", cacheerr.InvalidArgument("create %d: store is read-only", id))
	}
	rec := record.New(id, name)

	defer r.lock(id)()

	previous, err := r.mutable.Lookup(ctx, id)
	switch {
	case err == nil && previous != rec:
		if err := r.evict(ctx, id); err != nil {
			return r.fail("create", fmt.Errorf("create %d: %w", id, err))
		}
	case err != nil && !cacheerr.IsNotFound(err):
		return r.fail("create", fmt.Errorf("create %d: %w", id, err))
	}

	if err := r.mutable.Save(ctx, rec); err != nil {
		return r.fail("create", fmt.Errorf("create %d: %w", id, err))
	}
	r.logger.Debug("record created", zap.Int("id", id), zap.String("name", name))
	return nil
}

// RemoveByID evicts id from the cache and removes it from the store.
//
// id must lie in [0, Size()) at call time, otherwise the call fails with an
// InvalidArgumentError; an id in range that the store does not hold is a
// NotFoundError. Eviction happens first, and a failed eviction fails the
// whole operation with the store untouched.
func (r *Repository) RemoveByID(ctx context.Context, id int) error {
	if r.mutable == nil {
		return r.fail("remove", cacheerr.InvalidArgument("remove %d: store is read-only", id))
	}

	defer r.lock(id)()

	size, err := r.store.Size(ctx)
	if err != nil {
		return r.fail("remove", fmt.Errorf("remove %d: %w", id, err))
	}
	if id < 0 || id >= size {
		return r.fail("remove", cacheerr.InvalidArgument("remove %d: id is outside [0, %d)", id, size))
	}

	if _, err := r.mutable.Lookup(ctx, id); err != nil {
		return r.fail("remove", fmt.Errorf("remove %d: %w", id, err))
	}
	if err := r.evict(ctx, id); err != nil {
		return r.fail("remove", fmt.Errorf("remove %d: %w", id, err))
	}

	deleted, err := r.mutable.Delete(ctx, id)
	if err != nil {
		return r.fail("remove", fmt.Errorf("remove %d: %w", id, err))
	}
	if !deleted {
		return r.fail("remove", cacheerr.NotFound("remove %d: id is not stored", id))
	}
	r.logger.Debug("record removed", zap.Int("id", id))
	return nil
}

func (r *Repository) evict(ctx context.Context, id int) error {
	if err := r.region.Remove(ctx, id); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	r.count(func(m *Metrics) { m.Evictions.Inc() })
	return nil
}

// Size returns the number of records in the authoritative store.
func (r *Repository) Size(ctx context.Context) (int, error) {
	n, err := r.store.Size(ctx)
	if err != nil {
		return 0, r.fail("size", err)
	}
	return n, nil
}

// CacheSize returns the number of entries in the cache region.
func (r *Repository) CacheSize(ctx context.Context) (int, error) {
	n, err := r.region.Size(ctx)
	if err != nil {
		return 0, r.fail("cache_size", err)
	}
	return n, nil
}

// Sample reads store and cache sizes while no per-id operation is running,
// so the cache size never exceeds the store size it is reported with.
func (r *Repository) Sample(ctx context.Context) (Sample, error) {
	for i := range r.locks {
		r.locks[i].Lock()
	}
	defer func() {
		for i := range r.locks {
			r.locks[i].Unlock()
		}
	}()

	storeSize, err := r.store.Size(ctx)
	if err != nil {
		return Sample{}, r.fail("sample", err)
	}
	cacheSize, err := r.region.Size(ctx)
	if err != nil {
		return Sample{}, r.fail("sample", err)
	}

	r.count(func(m *Metrics) {
		m.StoreSize.Set(float64(storeSize))
		m.CacheSize.Set(float64(cacheSize))
	})
	return Sample{StoreSize: storeSize, CacheSize: cacheSize}, nil
}

func (r *Repository) count(fn func(*Metrics)) {
	if r.metrics != nil {
		fn(r.metrics)
	}
}

func (r *Repository) fail(op string, err error) error {
	kind := cacheerr.Kind(err)
	r.count(func(m *Metrics) { m.Errors.WithLabelValues(op, kind).Inc() })
	r.logger.Debug("repository operation failed",
		zap.String("op", op),
		zap.String("kind", kind),
		zap.Error(err))
	return err
}
