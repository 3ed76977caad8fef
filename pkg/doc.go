// Package pkg groups the library packages of the cache-aside repository.
//
// # Architecture Components
//
// Repository (pkg/repository):
//   - FindByID computes on a miss and caches the result
//   - Create and RemoveByID write to the store and evict, never populate
//   - Per-id striped locking keeps lookups and evictions ordered
//   - Prometheus hit, miss, load, eviction and error counters
//
// Backends (pkg/backend):
//   - Provider hands out named regions, a missing one is a ConfigurationError
//   - embedded: values in process, no serialization
//   - remote: protobuf records on a cache cluster, behind a circuit breaker
//   - redisremote: protobuf records in Redis hashes
//
// Stores (pkg/store):
//   - Fixed: the read-only table of 35 names
//   - Memory and SQL: mutable, last write wins
//
// Client SDK (pkg/client):
//   - Automatic node selection via consistent hashing
//   - Connection pooling per server node
//   - Region size and clear summed across nodes
//
// Cache Engine (pkg/cache):
//   - Named regions of keyed values with optional expiration
//   - Background cleanup of expired entries
//
// Protocol (pkg/protocol):
//   - Length-framed binary commands and responses
//   - Text form for the debugging CLI
//
// # Usage Examples
//
// In-process repository over the name table:
//
//	provider := embedded.New(embedded.Options{Regions: []string{backend.BasqueNamesRegion}})
//	defer provider.Close()
//
//	repo, err := repository.New(ctx, provider, backend.BasqueNamesRegion, store.NewFixed())
//	if err != nil {
//		return err
//	}
//	rec, err := repo.FindByID(ctx, 0) // {0, Aitor}
//
// Against a cache cluster:
//
//	c, err := client.New([]string{"node1:8080", "node2:8080"})
//	if err != nil {
//		return err
//	}
//	provider, err := remote.New(ctx, c, remote.Options{})
//	if err != nil {
//		c.Close()
//		return err // schema registration failed: a ConfigurationError
//	}
//	defer provider.Close()
//
//	repo, err := repository.New(ctx, provider, backend.BasqueNamesRegion, store.NewMemory())
//
// # Error Handling
//
// Errors carry a kind from pkg/cacheerr through any amount of %w wrapping:
//   - Configuration: missing region or failed schema registration
//   - NotFound: a lookup outside the store
//   - InvalidArgument: a write the store cannot accept
//   - Network: a remote call failed; the repository never retries it
//
// # Thread Safety
//
// Repositories, providers, regions, clients and stores are safe for
// concurrent use.
package pkg
