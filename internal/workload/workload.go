// Package workload drives a BasqueName repository with periodic random
// operations, the way a demo application exercises its cache.
//
// Every operation runs on its own fixed-delay timer: the next run is scheduled
// once the previous one returns. A failing run is logged and the timer keeps
// going. Run blocks until its context is cancelled.
package workload

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
	"github.com/cachemir/cacheaside/pkg/repository"
)

// Repository is the part of *repository.Repository the driver calls.
type Repository interface {
	FindByID(ctx context.Context, id int) (record.Record, error)
	Create(ctx context.Context, id int, name string) error
	RemoveByID(ctx context.Context, id int) error
	Sample(ctx context.Context) (repository.Sample, error)
}

var _ Repository = (*repository.Repository)(nil)

// IDSource yields ids in [0, n). It must be safe for concurrent use.
type IDSource interface {
	Intn(n int) int
}

type randomSource struct{}

func (randomSource) Intn(n int) int { return rand.IntN(n) }

// RandomIDs returns the default IDSource.
func RandomIDs() IDSource { return randomSource{} }

// Intervals is the delay between two runs of each operation. A negative
// interval disables the operation, and Or fills in zero ones.
type Intervals struct {
	Find   time.Duration
	Create time.Duration
	Remove time.Duration
	Size   time.Duration
}

// EmbeddedIntervals looks a name up every second and reports sizes every two.
// It suits read-only stores: it never creates nor removes.
func EmbeddedIntervals() Intervals {
	return Intervals{Find: time.Second, Size: 2 * time.Second}
}

// RemoteIntervals also creates a name every second and removes one every
// three, and reports sizes every ten seconds. It is the default for any
// mutable store.
func RemoteIntervals() Intervals {
	return Intervals{
		Find:   time.Second,
		Create: time.Second,
		Remove: 3 * time.Second,
		Size:   10 * time.Second,
	}
}

// Or fills the zero intervals of i from defaults. Negative ones are kept.
func (i Intervals) Or(defaults Intervals) Intervals {
	if i.Find == 0 {
		i.Find = defaults.Find
	}
	if i.Create == 0 {
		i.Create = defaults.Create
	}
	if i.Remove == 0 {
		i.Remove = defaults.Remove
	}
	if i.Size == 0 {
		i.Size = defaults.Size
	}
	return i
}

// Driver periodically calls a Repository with random ids.
type Driver struct {
	Repository Repository
	IDs        IDSource
	Names      []string // ids are drawn from [0, len(Names))
	Intervals  Intervals
	Mutable    bool // run Create and Remove; ignored for read-only stores
	Logger     *zap.Logger
}

func (d *Driver) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Driver) ids() IDSource {
	if d.IDs == nil {
		return randomSource{}
	}
	return d.IDs
}

// Run starts one timer per positive interval and blocks until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	if d.Repository == nil {
		return cacheerr.Configuration("workload: nil repository")
	}
	if len(d.Names) == 0 {
		return cacheerr.Configuration("workload: empty name table")
	}

	log := d.logger()
	log.Info("workload started",
		zap.Duration("find", d.Intervals.Find),
		zap.Duration("create", d.Intervals.Create),
		zap.Duration("remove", d.Intervals.Remove),
		zap.Duration("size", d.Intervals.Size),
		zap.Bool("mutable", d.Mutable))

	g, ctx := errgroup.WithContext(ctx)
	d.every(ctx, g, "find", d.Intervals.Find, func(ctx context.Context) error {
		_, err := d.FindOne(ctx)
		return err
	})
	if d.Mutable {
		d.every(ctx, g, "create", d.Intervals.Create, d.CreateOne)
		d.every(ctx, g, "remove", d.Intervals.Remove, d.RemoveOne)
	}
	d.every(ctx, g, "size", d.Intervals.Size, func(ctx context.Context) error {
		_, err := d.ReportSize(ctx)
		return err
	})

	err := g.Wait()
	log.Info("workload stopped")
	return err
}

func (d *Driver) every(ctx context.Context, g *errgroup.Group, op string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	log := d.logger().With(zap.String("op", op))

	g.Go(func() error {
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					log.Warn("workload operation failed",
						zap.String("kind", cacheerr.Kind(err)),
						zap.Error(err))
				}
				timer.Reset(interval)
			}
		}
	})
}

// FindOne looks up a random id.
func (d *Driver) FindOne(ctx context.Context) (record.Record, error) {
	id := d.ids().Intn(len(d.Names))
	rec, err := d.Repository.FindByID(ctx, id)
	if err != nil {
		return record.Record{}, err
	}
	d.logger().Info("find result", zap.Int("id", rec.ID), zap.String("name", rec.Name))
	return rec, nil
}

// CreateOne stores the name at a random id under that id.
func (d *Driver) CreateOne(ctx context.Context) error {
	id := d.ids().Intn(len(d.Names))
	if err := d.Repository.Create(ctx, id, d.Names[id]); err != nil {
		return err
	}
	d.logger().Debug("created", zap.Int("id", id), zap.String("name", d.Names[id]))
	return nil
}

// RemoveOne removes a random id. Ids beyond the current store size fail with
// an InvalidArgumentError.
func (d *Driver) RemoveOne(ctx context.Context) error {
	id := d.ids().Intn(len(d.Names))
	if err := d.Repository.RemoveByID(ctx, id); err != nil {
		return err
	}
	d.logger().Debug("removed", zap.Int("id", id))
	return nil
}

// ReportSize logs the cache and store sizes.
func (d *Driver) ReportSize(ctx context.Context) (repository.Sample, error) {
	s, err := d.Repository.Sample(ctx)
	if err != nil {
		return repository.Sample{}, err
	}
	d.logger().Info("sizes", zap.Int("cache_size", s.CacheSize), zap.Int("store_size", s.StoreSize))
	return s, nil
}
