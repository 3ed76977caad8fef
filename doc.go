// Package cacheaside is a cache-aside repository for BasqueName records over
// pluggable cache backends, together with the small region cache cluster it
// can run against.
//
// # Overview
//
// A repository answers lookups from a named cache region and falls back to an
// authoritative store on a miss, writing the computed record back to the
// region. Writes go to the store and evict the region entry, so a lookup after
// a removal or an overwrite never sees the old record.
//
// Three backends provide regions:
//
//   - embedded: in-process regions, optionally bounded LRU
//   - cachemir: regions hosted by one or more cache servers, sharded by
//     client-side consistent hashing
//   - redis: regions stored as Redis hashes
//
// Remote backends upload the BasqueName protobuf schema to the
// ___protobuf_metadata region before handing out any region, and refuse to
// start when that fails.
//
// # Running
//
// Start one or more cache servers:
//
//	./server --port 8080 --regions basque-names
//	./server --port 8081 --regions basque-names
//
// Run the workload against them with a mutable store:
//
//	./basquenames --nodes localhost:8080,localhost:8081 run --backend cachemir --store memory
//
// or entirely in process, over the read-only name table:
//
//	./basquenames run
//
// Inspect a region by hand:
//
//	./basquenames exec "SIZE basque-names"
//	./basquenames exec "GET basque-names 12"
//
// # Configuration
//
// Every setting can be given as a flag or as a CACHEASIDE_ environment
// variable, dots replaced by underscores:
//
//	CACHEASIDE_SERVER_PORT=8080 ./server
//	CACHEASIDE_WORKLOAD_BACKEND=redis CACHEASIDE_REDIS_ADDR=localhost:6379 ./basquenames run --store sqlite
//
// # Package Structure
//
//   - pkg/repository: cache-aside repository and its metrics
//   - pkg/backend: provider contract, with embedded, remote and redisremote implementations
//   - pkg/store: fixed, in-memory and SQLite authoritative stores
//   - pkg/schema: protobuf schema registration
//   - pkg/record: the BasqueName record and its wire format
//   - pkg/cacheerr: error kinds
//   - pkg/client: cluster client with consistent hashing
//   - pkg/cache: in-memory region engine
//   - pkg/protocol: binary communication protocol
//   - pkg/config: configuration management
//   - internal/server: cache server
//   - internal/workload: periodic workload driver
//   - internal/app: workload assembly
//   - cmd/server, cmd/basquenames: executables
package cacheaside
