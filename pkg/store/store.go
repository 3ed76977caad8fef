// Package store provides the authoritative BasqueName stores behind the
// cache-aside repository.
//
// Every store answers Lookup and Size. Mutable stores also accept Save and
// Delete. Three shapes are provided:
//
//   - Fixed: the read-only name table, indexed by position
//   - Memory: a mutable map guarded by a mutex
//   - SQL: a mutable table in a database/sql database (sqlite by default)
//
// Lookup of an id the store does not hold fails with a NotFoundError.
package store

import (
	"context"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
)

// Store is the source of truth for records.
type Store interface {
	Lookup(ctx context.Context, id int) (record.Record, error)
	Size(ctx context.Context) (int, error)
}

// Mutable is a Store that accepts writes.
type Mutable interface {
	Store
	// Save inserts or overwrites rec; the last write for an id wins.
	Save(ctx context.Context, rec record.Record) error
	// Delete removes id and reports whether it was present.
	Delete(ctx context.Context, id int) (bool, error)
}

// Fixed is the read-only table of Basque names; the id of a name is its index.
type Fixed struct {
	names []string
}

var _ Store = (*Fixed)(nil)

// NewFixed returns the 35-name table.
func NewFixed() *Fixed {
	return &Fixed{names: record.Names()}
}

// Lookup returns the record at position id.
func (f *Fixed) Lookup(_ context.Context, id int) (record.Record, error) {
	if id < 0 || id >= len(f.names) {
		return record.Record{}, cacheerr.NotFound("id %d is outside [0, %d)", id, len(f.names))
	}
	return record.New(id, f.names[id]), nil
}

// Size is the number of names in the table.
func (f *Fixed) Size(_ context.Context) (int, error) {
	return len(f.names), nil
}

// Seed saves one record per name of the fixed table into m.
func Seed(ctx context.Context, m Mutable) error {
	for id, name := range record.Names() {
		if err := m.Save(ctx, record.New(id, name)); err != nil {
			return err
		}
	}
	return nil
}
