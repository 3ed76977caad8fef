// Package backend defines the cache provider contract the repository is built on.
//
// A Provider hands out named regions. A Region maps record ids to records and
// reports its own size. Implementations live in the sub-packages:
//
//   - embedded: regions in the current process, no serialization
//   - remote: regions on a cachemir cluster, protobuf records, schema registered up front
//   - redisremote: regions as Redis hashes, protobuf records, schema registered up front
//
// GetCache never returns a nil Region with a nil error. A region that does not
// exist is a configuration failure and is reported as such.
package backend

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cachemir/cacheaside/pkg/record"
)

// BasqueNamesRegion is the region the repository caches BasqueName records in.
const BasqueNamesRegion = "basque-names"

// Provider hands out handles to named cache regions.
type Provider interface {
	// GetCache returns the named region, or a ConfigurationError if the
	// provider does not host it.
	GetCache(ctx context.Context, name string) (Region, error)
	Close() error
}

// Region is a named id -> record mapping owned by a Provider.
type Region interface {
	Name() string
	Get(ctx context.Context, id int) (record.Record, bool, error)
	Put(ctx context.Context, rec record.Record) error
	Remove(ctx context.Context, id int) error
	Size(ctx context.Context) (int, error)
}

// Key is the string form of id used by backends with string keys.
func Key(id int) string {
	return strconv.Itoa(id)
}

// Decode unmarshals the entry stored under id in the named region. An entry
// holding a different id is an error.
func Decode(regionName string, id int, data []byte) (record.Record, error) {
	rec, err := record.Unmarshal(data)
	if err != nil {
		return record.Record{}, fmt.Errorf("cache %q: entry %d: %w", regionName, id, err)
	}
	if rec.ID != id {
		return record.Record{}, fmt.Errorf("cache %q: entry %d holds id %d", regionName, id, rec.ID)
	}
	return rec, nil
}
